package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/revisioned/internal/domain/story"
	"github.com/yungbote/revisioned/internal/revision"
)

// Models lists every table the service owns, in creation order.
func Models() []interface{} {
	return []interface{}{
		&story.Story{},
	}
}

// EnableRevisioning registers the revisioned models with the plugin on db.
// Models that are already enabled keep their entry and bound policy.
func EnableRevisioning(db *gorm.DB) error {
	if p, ok := revision.FromDB(db); ok {
		if _, enabled := p.Lookup(&story.Story{}); enabled {
			return nil
		}
	}
	if _, err := revision.Enable(db, &story.Story{}, revision.Options{On: story.RevisionField}); err != nil {
		return fmt.Errorf("enable revisioning for Story: %w", err)
	}
	return nil
}

// AutoMigrateAll brings every model table and its history table up to date.
func AutoMigrateAll(db *gorm.DB) error {
	return revision.AutoAlterSchema(db, Models()...)
}

// RecreateAll drops and recreates every table. All data is lost.
func RecreateAll(db *gorm.DB) error {
	return revision.AutoCreateSchema(db, Models()...)
}

func (s *Service) EnableRevisioning() error { return EnableRevisioning(s.db) }

func (s *Service) AutoMigrateAll() error {
	if err := s.EnableRevisioning(); err != nil {
		return err
	}
	if err := AutoMigrateAll(s.db); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	s.log.Info("Schema migrated", "models", len(Models()))
	return nil
}

func (s *Service) RecreateAll() error {
	if err := s.EnableRevisioning(); err != nil {
		return err
	}
	if err := RecreateAll(s.db); err != nil {
		return fmt.Errorf("recreate schema: %w", err)
	}
	s.log.Warn("Schema recreated, all rows dropped", "models", len(Models()))
	return nil
}
