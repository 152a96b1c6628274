package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	dbpkg "github.com/yungbote/revisioned/internal/data/db"
	httpserver "github.com/yungbote/revisioned/internal/http"
	"github.com/yungbote/revisioned/internal/observability"
	"github.com/yungbote/revisioned/internal/platform/logger"
)

type App struct {
	Log    *logger.Logger
	DB     *gorm.DB
	Router *gin.Engine
	Server *httpserver.Server
	Cfg    Config
	Repos  Repos

	dbService    *dbpkg.Service
	otelShutdown func(context.Context) error
}

// New loads configuration, opens the database with revisioning enabled and
// wires the HTTP stack. It does not migrate; callers decide when to.
func New(ctx context.Context, configPath string) (*App, error) {
	cfg, err := LoadConfig(configPath, nil)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	otelShutdown := observability.InitOTel(ctx, log, cfg.Otel)

	svc, err := dbpkg.Open(cfg.DB, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := svc.EnableRevisioning(); err != nil {
		_ = svc.Close()
		log.Sync()
		return nil, err
	}
	theDB := svc.DB()

	reposet := wireRepos(theDB, log)
	handlerset := wireHandlers(theDB, log, reposet)
	server := httpserver.NewServer(cfg.HTTPAddr, wireRouterConfig(cfg, log, handlerset))

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       server.Engine,
		Server:       server,
		Cfg:          cfg,
		Repos:        reposet,
		dbService:    svc,
		otelShutdown: otelShutdown,
	}, nil
}

// Migrate brings the schema up to date, or drops and recreates it.
func (a *App) Migrate(recreate bool) error {
	if recreate {
		return a.dbService.RecreateAll()
	}
	return a.dbService.AutoMigrateAll()
}

func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil && a.Log != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.dbService != nil {
		_ = a.dbService.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
