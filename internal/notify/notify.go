// Package notify delivers fire-and-forget events from the tracker to
// whatever host is presenting progress (CLI, UI, tests).
package notify

import (
	"sync"
	"time"

	"github.com/asteroid-belt/prepsync/internal/models"
)

// EventType names a notification.
type EventType string

const (
	EventAchievementUnlocked    EventType = "achievement_unlocked"
	EventSyncStatusChanged      EventType = "sync_status_changed"
	EventConflictRequiresChoice EventType = "conflict_requires_choice"
	EventSyncItemDropped        EventType = "sync_item_dropped"
)

// SyncStatus is carried by EventSyncStatusChanged.
type SyncStatus string

const (
	StatusSyncing  SyncStatus = "syncing"
	StatusSynced   SyncStatus = "synced"
	StatusOffline  SyncStatus = "offline"
	StatusFailed   SyncStatus = "failed"
	StatusDegraded SyncStatus = "degraded"
)

// Event is a single notification. Only the fields relevant to Type are set.
type Event struct {
	Type          EventType
	Time          time.Time
	UserID        string
	Status        SyncStatus
	AchievementID string
	Achievement   *models.Achievement
	Conflict      *models.Conflict
	Item          *models.SyncQueueItem
	Message       string
}

// Notifier receives events. Implementations must not block.
type Notifier interface {
	Notify(Event)
}

// Func adapts a function to Notifier.
type Func func(Event)

// Notify calls f.
func (f Func) Notify(e Event) { f(e) }

// noopNotifier does nothing.
type noopNotifier struct{}

func (noopNotifier) Notify(Event) {}

// Noop returns a Notifier that discards every event.
func Noop() Notifier { return noopNotifier{} }

// Bus fans events out to subscribers over buffered channels.
// A subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	buffer int
}

// NewBus creates a bus whose subscriber channels hold buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 16
	}
	return &Bus{subs: make(map[int]chan Event), buffer: buffer}
}

// Subscribe returns a channel of events and a function that unsubscribes
// and closes it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Notify delivers e to every subscriber without blocking.
func (b *Bus) Notify(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Multi fans out to several notifiers in order.
type Multi []Notifier

// Notify calls every notifier.
func (m Multi) Notify(e Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(e)
		}
	}
}
