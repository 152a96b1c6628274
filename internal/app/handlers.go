package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/revisioned/internal/http/handlers"
	"github.com/yungbote/revisioned/internal/platform/logger"
)

type Handlers struct {
	Story  *handlers.StoryHandler
	Health *handlers.HealthHandler
}

func wireHandlers(db *gorm.DB, log *logger.Logger, repos Repos) Handlers {
	log.Debug("Wiring handlers...")
	return Handlers{
		Story:  handlers.NewStoryHandler(repos.Story, log),
		Health: handlers.NewHealthHandler(db),
	}
}
