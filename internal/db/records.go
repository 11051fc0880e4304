package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/asteroid-belt/prepsync/internal/models"
)

// Secondary indexes available to FindByIndex.
const (
	IndexCategory  = "category"
	IndexUserID    = "userId"
	IndexTrackName = "trackName"
)

var indexColumns = map[string]string{
	IndexCategory:  "category",
	IndexUserID:    "user_id",
	IndexTrackName: "track_name",
}

// Get returns the record stored under key, or nil if there is none.
func (db *DB) Get(ctx context.Context, collection models.Collection, key string) (*models.Record, error) {
	var rec models.Record
	err := db.WithContext(ctx).
		Where("collection = ? AND key = ?", collection, key).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	return &rec, nil
}

// Put upserts rec by (collection, key) and stamps LastModified.
func (db *DB) Put(ctx context.Context, rec *models.Record) error {
	if rec.Collection == "" || rec.Key == "" {
		return fmt.Errorf("put record: collection and key are required")
	}
	rec.LastModified = time.Now()
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "collection"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id", "category", "track_name", "data", "last_modified",
		}),
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", rec.Collection, rec.Key, err)
	}
	return nil
}

// GetAll returns every record in a collection ordered by key.
func (db *DB) GetAll(ctx context.Context, collection models.Collection) ([]models.Record, error) {
	var recs []models.Record
	if err := db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("key").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("get all %s: %w", collection, err)
	}
	return recs, nil
}

// FindByIndex returns records whose secondary index equals value.
func (db *DB) FindByIndex(ctx context.Context, collection models.Collection, index, value string) ([]models.Record, error) {
	column, ok := indexColumns[index]
	if !ok {
		return nil, fmt.Errorf("unknown index %q", index)
	}
	var recs []models.Record
	if err := db.WithContext(ctx).
		Where("collection = ? AND "+column+" = ?", collection, value).
		Order("key").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("find %s by %s: %w", collection, index, err)
	}
	return recs, nil
}

// ListSince returns records modified at or after since, oldest first.
func (db *DB) ListSince(ctx context.Context, collection models.Collection, since time.Time) ([]models.Record, error) {
	var recs []models.Record
	if err := db.WithContext(ctx).
		Where("collection = ? AND last_modified >= ?", collection, since).
		Order("last_modified").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list %s since: %w", collection, err)
	}
	return recs, nil
}

// Delete removes a record. Deleting a missing key is not an error.
func (db *DB) Delete(ctx context.Context, collection models.Collection, key string) error {
	if err := db.WithContext(ctx).
		Where("collection = ? AND key = ?", collection, key).
		Delete(&models.Record{}).Error; err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, key, err)
	}
	return nil
}

// Clear removes every record in a collection. Clearing the syncQueue
// collection also empties the queue table.
func (db *DB) Clear(ctx context.Context, collection models.Collection) error {
	if collection == models.CollectionSyncQueue {
		if err := db.WithContext(ctx).
			Session(&gorm.Session{AllowGlobalUpdate: true}).
			Delete(&models.SyncQueueItem{}).Error; err != nil {
			return fmt.Errorf("clear sync queue: %w", err)
		}
	}
	if err := db.WithContext(ctx).
		Where("collection = ?", collection).
		Delete(&models.Record{}).Error; err != nil {
		return fmt.Errorf("clear %s: %w", collection, err)
	}
	return nil
}

// ClearOfflineData removes cached progress, settings and pending sync work.
// Content collections (questions, tracks, categories) are kept.
func (db *DB) ClearOfflineData(ctx context.Context) error {
	return db.Transaction(func(tx *DB) error {
		for _, c := range []models.Collection{
			models.CollectionProgress,
			models.CollectionSettings,
			models.CollectionSyncQueue,
		} {
			if err := tx.Clear(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
}
