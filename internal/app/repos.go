package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/revisioned/internal/data/repos/stories"
	"github.com/yungbote/revisioned/internal/platform/logger"
)

type Repos struct {
	Story stories.StoryRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Debug("Wiring repos...")
	return Repos{
		Story: stories.NewStoryRepo(db, log),
	}
}
