package models

import "time"

// Collection names a partition of the local store.
type Collection string

// Local store collections.
const (
	CollectionQuestions  Collection = "questions"
	CollectionProgress   Collection = "progress"
	CollectionTracks     Collection = "tracks"
	CollectionCategories Collection = "categories"
	CollectionSyncQueue  Collection = "syncQueue"
	CollectionSettings   Collection = "settings"
)

// AllCollections lists every collection created at initialization.
func AllCollections() []Collection {
	return []Collection{
		CollectionQuestions,
		CollectionProgress,
		CollectionTracks,
		CollectionCategories,
		CollectionSyncQueue,
		CollectionSettings,
	}
}

// Record is a cached JSON payload keyed by (collection, key).
type Record struct {
	Collection   Collection `gorm:"primaryKey;size:32" json:"collection"`
	Key          string     `gorm:"primaryKey;size:255" json:"key"`
	UserID       string     `gorm:"size:64;index" json:"userId,omitempty"`
	Category     string     `gorm:"size:100;index" json:"category,omitempty"`
	TrackName    string     `gorm:"size:100;index" json:"trackName,omitempty"`
	Data         string     `gorm:"type:text" json:"data"`
	LastModified time.Time  `gorm:"index" json:"lastModified"`
}

// TableName specifies the table name for GORM.
func (Record) TableName() string {
	return "records"
}

// SyncQueueItem is a mutation waiting to be acknowledged by the remote service.
type SyncQueueItem struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Type        string    `gorm:"size:32" json:"type"`
	Operation   string    `gorm:"size:64" json:"operation"`
	Data        string    `gorm:"type:text" json:"data"`
	Priority    int       `gorm:"index:idx_queue_order,priority:1" json:"priority"`
	Timestamp   time.Time `gorm:"index:idx_queue_order,priority:2" json:"timestamp"`
	Attempts    int       `gorm:"default:0" json:"attempts"`
	MaxAttempts int       `gorm:"default:3" json:"maxAttempts"`
	LastError   string    `gorm:"size:1000" json:"lastError,omitempty"`
}

// TableName specifies the table name for GORM.
func (SyncQueueItem) TableName() string {
	return "sync_queue"
}

// Exhausted reports whether the item has used its retry budget.
func (i *SyncQueueItem) Exhausted() bool {
	return i.Attempts >= i.MaxAttempts
}

// SyncMeta stores sync metadata as key-value pairs.
type SyncMeta struct {
	Key       string    `gorm:"primaryKey;size:100" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (SyncMeta) TableName() string {
	return "sync_meta"
}

// Common sync meta keys.
const (
	SyncMetaLastSyncAt     = "last_sync_at"
	SyncMetaLastSyncStatus = "last_sync_status"
	SyncMetaLocalUserID    = "local_user_id"
	SyncMetaSchemaVersion  = "schema_version"
)
