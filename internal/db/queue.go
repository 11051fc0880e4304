package db

import (
	"context"
	"fmt"
	"time"

	"github.com/asteroid-belt/prepsync/internal/models"
)

// InsertQueueItem appends item to the sync queue, assigning its ID.
func (db *DB) InsertQueueItem(ctx context.Context, item *models.SyncQueueItem) error {
	if err := db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("insert queue item: %w", err)
	}
	return nil
}

// ListQueueItems returns queued items in drain order:
// priority descending, then timestamp ascending.
func (db *DB) ListQueueItems(ctx context.Context) ([]models.SyncQueueItem, error) {
	var items []models.SyncQueueItem
	if err := db.WithContext(ctx).
		Order("priority DESC").
		Order("timestamp ASC").
		Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	return items, nil
}

// UpdateQueueItem persists the retry bookkeeping of item.
func (db *DB) UpdateQueueItem(ctx context.Context, item *models.SyncQueueItem) error {
	if err := db.WithContext(ctx).
		Model(&models.SyncQueueItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]any{
			"attempts":     item.Attempts,
			"max_attempts": item.MaxAttempts,
			"last_error":   item.LastError,
		}).Error; err != nil {
		return fmt.Errorf("update queue item %d: %w", item.ID, err)
	}
	return nil
}

// DeleteQueueItem removes an item from the queue.
func (db *DB) DeleteQueueItem(ctx context.Context, id uint) error {
	if err := db.WithContext(ctx).Delete(&models.SyncQueueItem{}, id).Error; err != nil {
		return fmt.Errorf("delete queue item %d: %w", id, err)
	}
	return nil
}

// QueueSummary returns the number of queued items and the oldest timestamp.
// The timestamp is zero when the queue is empty.
func (db *DB) QueueSummary(ctx context.Context) (int64, time.Time, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&models.SyncQueueItem{}).Count(&count).Error; err != nil {
		return 0, time.Time{}, fmt.Errorf("count queue: %w", err)
	}
	if count == 0 {
		return 0, time.Time{}, nil
	}
	var oldest models.SyncQueueItem
	if err := db.WithContext(ctx).Order("timestamp ASC").First(&oldest).Error; err != nil {
		return 0, time.Time{}, fmt.Errorf("oldest queue item: %w", err)
	}
	return count, oldest.Timestamp, nil
}
