// Package engine is the application-facing surface of the offline
// mutation sync engine. One Engine is constructed at application start
// with its store, transport and connectivity collaborators injected, and
// passed by reference wherever the queue is used.
package engine

import (
	"context"

	"github.com/kimhsiao/opsync/internal/connectivity"
	"github.com/kimhsiao/opsync/internal/events"
	"github.com/kimhsiao/opsync/internal/models"
	"github.com/kimhsiao/opsync/internal/processor"
	"github.com/kimhsiao/opsync/internal/queue"
	"github.com/kimhsiao/opsync/internal/store"
	"github.com/kimhsiao/opsync/internal/transport"
)

// Engine wires the queue repository, sync processor and connectivity
// coordinator behind one handle.
type Engine struct {
	repo  *queue.Repository
	proc  *processor.Processor
	coord *connectivity.Coordinator
	bus   *events.Bus
}

// New assembles an Engine from its collaborators. notifier may be nil
// when the host platform has no connectivity event source.
func New(s store.Store, dispatcher transport.Dispatcher, notifier connectivity.Notifier, cfg connectivity.Config) *Engine {
	bus := events.NewBus()
	repo := queue.NewRepository(s)
	proc := processor.New(repo, dispatcher, bus)
	coord := connectivity.New(proc, notifier, cfg)

	return &Engine{
		repo:  repo,
		proc:  proc,
		coord: coord,
		bus:   bus,
	}
}

// Start begins connectivity-driven background delivery.
func (e *Engine) Start(ctx context.Context) {
	e.coord.Start(ctx)
}

// Stop stops background delivery. An in-flight run finishes its snapshot;
// anything uncommitted stays queued for the next start.
func (e *Engine) Stop() {
	e.coord.Stop()
}

// Enqueue validates and persists one pending mutation, returning its
// assigned id. Failure here means the mutation was never queued and must
// be treated as fatal by the initiating action.
func (e *Engine) Enqueue(ctx context.Context, op *models.PendingOperation) (models.UUID, error) {
	id, err := e.repo.Enqueue(ctx, op)
	if err != nil {
		return "", err
	}
	e.bus.Publish(events.Event{Type: events.TypeEnqueued, Item: op})
	return id, nil
}

// RunSync performs one immediate processing pass and returns its result.
// A pass already draining yields processor.ErrRunInProgress.
func (e *Engine) RunSync(ctx context.Context) (*models.SyncRunResult, error) {
	return e.proc.Run(ctx)
}

// PendingCount returns the number of queued operations, held included.
// Reads go to the store directly and never block on an in-flight run.
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	return e.repo.Count(ctx)
}

// ListPending returns the operations awaiting automatic processing in
// queue order.
func (e *Engine) ListPending(ctx context.Context) ([]*models.PendingOperation, error) {
	return e.repo.ListPending(ctx)
}

// ListHeld returns operations parked for manual conflict review.
func (e *Engine) ListHeld(ctx context.Context) ([]*models.PendingOperation, error) {
	return e.repo.ListHeld(ctx)
}

// RequeueHeld returns a held operation to the automatic retry path after
// the user resolved its conflict out-of-band.
func (e *Engine) RequeueHeld(ctx context.Context, id models.UUID) error {
	return e.repo.Requeue(ctx, id)
}

// AddListener subscribes to queue and sync events; the returned function
// unsubscribes.
func (e *Engine) AddListener(fn events.Listener) func() {
	return e.bus.Subscribe(fn)
}

// SetOnline forwards the host connectivity signal to the coordinator.
func (e *Engine) SetOnline(online bool) {
	e.coord.SetOnline(online)
}

// TriggerSync requests an immediate background run; false means a run was
// already draining.
func (e *Engine) TriggerSync(ctx context.Context) bool {
	return e.coord.TriggerSync(ctx)
}

// Clear drops every queued operation and notifies observers. Used only on
// explicit user logout/reset.
func (e *Engine) Clear(ctx context.Context) error {
	if err := e.repo.Clear(ctx); err != nil {
		return err
	}
	e.bus.Publish(events.Event{Type: events.TypeQueueCleared})
	return nil
}
