package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/revisioned/internal/platform/logger"
	"github.com/yungbote/revisioned/internal/revision"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver     string
	SQLitePath string
	Postgres   PostgresConfig
	// LogLevel is the gorm SQL log level: silent, error, warn or info.
	LogLevel string
}

type Service struct {
	db     *gorm.DB
	plugin *revision.Plugin
	log    *logger.Logger
}

// Open connects to the configured database and installs the revision plugin.
// Models are enabled separately by EnableRevisioning.
func Open(cfg Config, logg *logger.Logger) (*Service, error) {
	serviceLog := logg.With("service", "DBService")

	gormCfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logg.Gorm(cfg.LogLevel),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverSQLite:
		db, err = openSQLite(cfg.SQLitePath, gormCfg, serviceLog)
	case DriverPostgres:
		db, err = openPostgres(cfg.Postgres, gormCfg, serviceLog)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	plugin := revision.New(logg)
	if err := db.Use(plugin); err != nil {
		return nil, fmt.Errorf("install revision plugin: %w", err)
	}
	return &Service{db: db, plugin: plugin, log: serviceLog}, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) Plugin() *revision.Plugin { return s.plugin }

func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
