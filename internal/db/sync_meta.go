package db

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/asteroid-belt/prepsync/internal/models"
)

// GetSyncMeta retrieves a sync metadata value.
func (db *DB) GetSyncMeta(key string) (string, error) {
	var meta models.SyncMeta
	err := db.First(&meta, "key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return meta.Value, nil
}

// SetSyncMeta sets a sync metadata value.
func (db *DB) SetSyncMeta(key, value string) error {
	meta := models.SyncMeta{Key: key, Value: value}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&meta).Error
}

// GetOrCreateLocalUserID returns the anonymous id used when nobody is
// signed in, creating one on first use. On any storage error it falls back
// to a per-session id.
func (db *DB) GetOrCreateLocalUserID() string {
	id, err := db.GetSyncMeta(models.SyncMetaLocalUserID)
	if err == nil && id != "" {
		return id
	}

	id = "local-" + uuid.New().String()
	// Even if save fails, the generated id is good for this session.
	_ = db.SetSyncMeta(models.SyncMetaLocalUserID, id)
	return id
}
