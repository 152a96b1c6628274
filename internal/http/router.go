package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/revisioned/internal/http/handlers"
	httpMW "github.com/yungbote/revisioned/internal/http/middleware"
	"github.com/yungbote/revisioned/internal/platform/logger"
)

type RouterConfig struct {
	ServiceName    string
	AllowedOrigins []string
	Log            *logger.Logger

	StoryHandler  *httpH.StoryHandler
	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "revisioned"
	}
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.AllowedOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Stories
		if cfg.StoryHandler != nil {
			api.POST("/stories", cfg.StoryHandler.CreateStory)
			api.GET("/stories/:id", cfg.StoryHandler.GetStory)
			api.PATCH("/stories/:id", cfg.StoryHandler.UpdateStory)
			api.GET("/stories/:id/versions", cfg.StoryHandler.ListVersions)
		}
	}

	return r
}
