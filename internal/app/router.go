package app

import (
	httpserver "github.com/yungbote/revisioned/internal/http"
	"github.com/yungbote/revisioned/internal/platform/logger"
)

func wireRouterConfig(cfg Config, log *logger.Logger, h Handlers) httpserver.RouterConfig {
	return httpserver.RouterConfig{
		ServiceName:    cfg.Otel.ServiceName,
		AllowedOrigins: cfg.AllowedOrigins,
		Log:            log,
		StoryHandler:   h.Story,
		HealthHandler:  h.Health,
	}
}
