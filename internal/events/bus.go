// Package events provides typed event fan-out for queue and sync activity,
// so UI consumers (badges, toasts) can react without polling.
package events

import (
	"sort"
	"sync"

	"github.com/kimhsiao/opsync/internal/models"
)

// Type tags an event variant.
type Type string

const (
	TypeEnqueued      Type = "enqueued"
	TypeSyncStarted   Type = "sync_started"
	TypeItemSynced    Type = "item_synced"
	TypeItemFailed    Type = "item_failed"
	TypeSyncCompleted Type = "sync_completed"
	TypeQueueCleared  Type = "queue_cleared"
)

// Event is one notification. Item is set for per-item variants, Result for
// sync_completed, Err for item_failed when a terminal error is known.
type Event struct {
	Type   Type
	Item   *models.PendingOperation
	Result *models.SyncRunResult
	Err    error
}

// Listener receives published events. Listeners are invoked synchronously
// in subscription order; they must not block.
type Listener func(Event)

// Bus is a simple subject with unsubscribe support.
type Bus struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]Listener
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers a listener and returns its unsubscribe function.
// Unsubscribing twice is harmless.
func (b *Bus) Subscribe(fn Listener) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

// Publish delivers the event to every current listener.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	ids := make([]int, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]Listener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, b.listeners[id])
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(event)
	}
}

// Len returns the number of active listeners.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}
