package revision

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// openDB returns a fresh in-memory database with the plugin installed.
func openDB(t *testing.T) (*gorm.DB, *Plugin) {
	t.Helper()
	dsn := fmt.Sprintf("file:revision_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	p := New(nil)
	require.NoError(t, db.Use(p))
	return db, p
}

// enable registers model and migrates its tables.
func enable(t *testing.T, db *gorm.DB, model interface{}, opts Options) *Entry {
	t.Helper()
	entry, err := Enable(db, model, opts)
	require.NoError(t, err)
	require.NoError(t, AutoAlterSchema(db, model))
	return entry
}

func countVersions(t *testing.T, db *gorm.DB, rec Record) int64 {
	t.Helper()
	n, err := CountVersions(db, rec)
	require.NoError(t, err)
	return n
}

type story struct {
	ID        uint      `gorm:"primaryKey"`
	Title     string    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:false"`

	Versioned `gorm:"-"`
}

func (s *story) BeforeSave(tx *gorm.DB) error {
	if !Dirty(tx, s) {
		return nil
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	if !now.After(s.UpdatedAt) {
		now = s.UpdatedAt.Add(time.Microsecond)
	}
	tx.Statement.SetColumn("UpdatedAt", now)
	return nil
}

// page has a composite natural key and an application-managed revision.
type page struct {
	Site string `gorm:"primaryKey"`
	Slug string `gorm:"primaryKey"`
	Body string
	Rev  int64 `gorm:"not null;uniqueIndex"`

	Versioned `gorm:"-"`
}

// draft decides for itself whether a save is worth keeping.
type draft struct {
	ID      uint `gorm:"primaryKey"`
	Body    string
	Rev     int64 `gorm:"not null"`
	Publish bool  `gorm:"-"`

	Versioned `gorm:"-"`
}

func (d *draft) WantsNewVersion(*gorm.DB) (bool, error) { return d.Publish, nil }

// plain is never enabled.
type plain struct {
	ID   uint `gorm:"primaryKey"`
	Name string

	Versioned `gorm:"-"`
}
