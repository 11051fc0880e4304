package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/asteroid-belt/prepsync/internal/models"
)

// UserKey is the primary key of a user's progress and settings records.
func UserKey(userID string) string {
	return "user_" + userID
}

// GetProgress loads the user's progress document, or nil if none is cached.
func (db *DB) GetProgress(ctx context.Context, userID string) (*models.ProgressDocument, error) {
	rec, err := db.Get(ctx, models.CollectionProgress, UserKey(userID))
	if err != nil || rec == nil {
		return nil, err
	}
	var doc models.ProgressDocument
	if err := json.Unmarshal([]byte(rec.Data), &doc); err != nil {
		return nil, fmt.Errorf("decode progress for %s: %w", userID, err)
	}
	doc.Normalize()
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("cached progress for %s: %w", userID, err)
	}
	return &doc, nil
}

// PutProgress stores doc under the user's key.
func (db *DB) PutProgress(ctx context.Context, doc *models.ProgressDocument) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	return db.Put(ctx, &models.Record{
		Collection: models.CollectionProgress,
		Key:        UserKey(doc.UserID),
		UserID:     doc.UserID,
		Data:       string(data),
	})
}

// GetSettings loads the user's settings document, or nil if none is cached.
func (db *DB) GetSettings(ctx context.Context, userID string) (*models.SettingsDocument, error) {
	rec, err := db.Get(ctx, models.CollectionSettings, UserKey(userID))
	if err != nil || rec == nil {
		return nil, err
	}
	var doc models.SettingsDocument
	if err := json.Unmarshal([]byte(rec.Data), &doc); err != nil {
		return nil, fmt.Errorf("decode settings for %s: %w", userID, err)
	}
	doc.Normalize()
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("cached settings for %s: %w", userID, err)
	}
	return &doc, nil
}

// PutSettings stores doc under the user's key.
func (db *DB) PutSettings(ctx context.Context, doc *models.SettingsDocument) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return db.Put(ctx, &models.Record{
		Collection: models.CollectionSettings,
		Key:        UserKey(doc.UserID),
		UserID:     doc.UserID,
		Data:       string(data),
	})
}
