// Package events provides unit tests for the event bus.
package events

import (
	"testing"

	"github.com/kimhsiao/opsync/internal/models"
)

// TestSubscribePublish verifies listeners receive published events.
func TestSubscribePublish(t *testing.T) {
	bus := NewBus()

	var got []Event
	bus.Subscribe(func(e Event) {
		got = append(got, e)
	})

	bus.Publish(Event{Type: TypeEnqueued})
	bus.Publish(Event{Type: TypeSyncStarted})

	if len(got) != 2 {
		t.Fatalf("received %d events, want 2", len(got))
	}
	if got[0].Type != TypeEnqueued || got[1].Type != TypeSyncStarted {
		t.Errorf("event order = [%s %s]", got[0].Type, got[1].Type)
	}
}

// TestUnsubscribe verifies the returned function stops delivery and is
// safe to call twice.
func TestUnsubscribe(t *testing.T) {
	bus := NewBus()

	count := 0
	unsubscribe := bus.Subscribe(func(e Event) { count++ })

	bus.Publish(Event{Type: TypeEnqueued})
	unsubscribe()
	bus.Publish(Event{Type: TypeEnqueued})
	unsubscribe()

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if bus.Len() != 0 {
		t.Errorf("listeners = %d, want 0", bus.Len())
	}
}

// TestMultipleListeners verifies fan-out to several listeners.
func TestMultipleListeners(t *testing.T) {
	bus := NewBus()

	a, b := 0, 0
	bus.Subscribe(func(e Event) { a++ })
	bus.Subscribe(func(e Event) { b++ })

	bus.Publish(Event{Type: TypeQueueCleared})

	if a != 1 || b != 1 {
		t.Errorf("deliveries = (%d, %d), want (1, 1)", a, b)
	}
}

// TestEventPayloads verifies item and result fields ride along.
func TestEventPayloads(t *testing.T) {
	bus := NewBus()

	var got Event
	bus.Subscribe(func(e Event) { got = e })

	item := &models.PendingOperation{ID: "op-1", EntityID: "INV-1"}
	result := &models.SyncRunResult{Success: 2, Failed: 1}
	bus.Publish(Event{Type: TypeSyncCompleted, Item: item, Result: result})

	if got.Item == nil || got.Item.EntityID != "INV-1" {
		t.Error("item did not ride along")
	}
	if got.Result == nil || got.Result.Success != 2 {
		t.Error("result did not ride along")
	}
}
