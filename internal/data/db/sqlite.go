package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yungbote/revisioned/internal/platform/logger"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

func sqliteDSN(path string) string {
	path = strings.TrimSpace(path)
	switch {
	case path == "" || path == MemoryPath:
		return "file::memory:?cache=shared&_foreign_keys=1"
	case strings.HasPrefix(path, "file:"):
		return path
	default:
		return "file:" + path + "?_foreign_keys=1&_busy_timeout=5000"
	}
}

func openSQLite(path string, gormCfg *gorm.Config, log *logger.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite %q: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite serialises writers; one connection avoids "database is locked"
	sqlDB.SetMaxOpenConns(1)
	log.Info("Opened SQLite", "path", path)
	return db, nil
}
