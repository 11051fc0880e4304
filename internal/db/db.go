// Package db provides the GORM-based local store for prepsync.
// It uses the pure-Go SQLite driver so the store works without cgo.
package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/asteroid-belt/prepsync/internal/models"
)

// ErrStorageUnavailable is returned when persistent storage cannot be opened.
// Callers are expected to fall back to NewMemory for the session.
var ErrStorageUnavailable = errors.New("persistent storage unavailable")

// SchemaVersion is written to sync_meta on first initialization.
const SchemaVersion = "1"

// DB wraps the GORM database connection with store-specific operations.
type DB struct {
	*gorm.DB
	path string
}

// Config holds database configuration options.
type Config struct {
	Path        string
	Debug       bool
	MaxIdleConn int
	MaxOpenConn int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(path string) Config {
	return Config{
		Path:        path,
		Debug:       false,
		MaxIdleConn: 1,
		MaxOpenConn: 1,
	}
}

// New creates a new database connection and runs migrations.
func New(cfg Config) (*DB, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create db directory: %v", ErrStorageUnavailable, err)
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(DELETE)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", cfg.Path)
	return open(dsn, cfg)
}

// NewMemory opens a private in-memory store. Nothing survives Close.
func NewMemory() (*DB, error) {
	cfg := DefaultConfig(":memory:")
	return open(":memory:", cfg)
}

func open(dsn string, cfg Config) (*DB, error) {
	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logLevel),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrStorageUnavailable, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	// An in-memory database lives and dies with its connection.
	sqlDB.SetMaxIdleConns(max(cfg.MaxIdleConn, 1))
	sqlDB.SetMaxOpenConns(max(cfg.MaxOpenConn, 1))
	if cfg.Path != ":memory:" {
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	wrapped := &DB{DB: db, path: cfg.Path}

	if err := wrapped.migrate(); err != nil {
		_ = wrapped.Close()
		return nil, fmt.Errorf("%w: migrate: %v", ErrStorageUnavailable, err)
	}

	if err := wrapped.seedSyncMeta(); err != nil {
		_ = wrapped.Close()
		return nil, fmt.Errorf("seed sync meta: %w", err)
	}

	return wrapped, nil
}

// migrate runs GORM auto-migrations for all models.
func (db *DB) migrate() error {
	return db.AutoMigrate(
		&models.Record{},
		&models.SyncQueueItem{},
		&models.SyncMeta{},
	)
}

// seedSyncMeta inserts default sync metadata if not present.
func (db *DB) seedSyncMeta() error {
	defaults := []models.SyncMeta{
		{Key: models.SyncMetaLastSyncAt, Value: ""},
		{Key: models.SyncMetaLastSyncStatus, Value: ""},
		{Key: models.SyncMetaSchemaVersion, Value: SchemaVersion},
	}

	for _, meta := range defaults {
		result := db.Where("key = ?", meta.Key).FirstOrCreate(&meta)
		if result.Error != nil {
			return result.Error
		}
	}

	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// InMemory reports whether the store is the non-persistent fallback.
func (db *DB) InMemory() bool {
	return db.path == ":memory:"
}

// Close closes the database connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction executes a function within a database transaction.
// If the callback returns an error, the transaction is rolled back.
func (d *DB) Transaction(fc func(tx *DB) error) error {
	return d.DB.Transaction(func(tx *gorm.DB) error {
		wrappedTx := &DB{DB: tx, path: d.path}
		return fc(wrappedTx)
	})
}

// Stats summarizes the local store.
type Stats struct {
	Records     map[models.Collection]int64
	QueuedItems int64
	SizeBytes   int64
	LastUpdated time.Time
}

// GetStats returns aggregate statistics about the database.
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{Records: make(map[models.Collection]int64)}

	type row struct {
		Collection models.Collection
		N          int64
	}
	var rows []row
	if err := db.Model(&models.Record{}).
		Select("collection, count(*) as n").
		Group("collection").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	for _, r := range rows {
		stats.Records[r.Collection] = r.N
	}

	if err := db.Model(&models.SyncQueueItem{}).Count(&stats.QueuedItems).Error; err != nil {
		return nil, fmt.Errorf("count queue: %w", err)
	}

	if !db.InMemory() {
		if info, err := os.Stat(db.path); err == nil {
			stats.SizeBytes = info.Size()
		}
	}

	stats.LastUpdated = time.Now()
	return stats, nil
}
