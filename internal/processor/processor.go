// Package processor drains the pending operation queue against the remote
// service, one bounded single-pass run at a time.
package processor

import (
	"context"
	"sync"
	"time"

	"github.com/kimhsiao/opsync/internal/conflict"
	apperrors "github.com/kimhsiao/opsync/internal/errors"
	"github.com/kimhsiao/opsync/internal/events"
	"github.com/kimhsiao/opsync/internal/logging"
	"github.com/kimhsiao/opsync/internal/models"
	"github.com/kimhsiao/opsync/internal/queue"
	"github.com/kimhsiao/opsync/internal/store"
	"github.com/kimhsiao/opsync/internal/transport"
)

// Status represents the processor's run state.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusDraining Status = "draining"
)

// ErrRunInProgress is returned when a run is requested while another run
// is still draining. The in-flight run is not affected.
var ErrRunInProgress = apperrors.New(apperrors.ErrSyncInProgress, "a sync run is already draining")

// Processor replays queued mutations in priority order. Only one run is
// in flight at a time; items enqueued during a run are picked up by the
// next one.
type Processor struct {
	repo       *queue.Repository
	dispatcher transport.Dispatcher
	bus        *events.Bus

	mu     sync.Mutex
	status Status
	now    func() time.Time
}

// New creates a Processor.
func New(repo *queue.Repository, dispatcher transport.Dispatcher, bus *events.Bus) *Processor {
	return &Processor{
		repo:       repo,
		dispatcher: dispatcher,
		bus:        bus,
		status:     StatusIdle,
		now:        time.Now,
	}
}

// Status returns the processor's current run state.
func (p *Processor) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Run drains the snapshot of pending operations taken at its start and
// returns the aggregate result. Individual item failures never abort the
// run; only a failure to read the queue does. A second Run call while one
// is draining returns ErrRunInProgress without touching the queue.
func (p *Processor) Run(ctx context.Context) (*models.SyncRunResult, error) {
	p.mu.Lock()
	if p.status == StatusDraining {
		p.mu.Unlock()
		return nil, ErrRunInProgress
	}
	p.status = StatusDraining
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.status = StatusIdle
		p.mu.Unlock()
	}()

	snapshot, err := p.repo.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	p.bus.Publish(events.Event{Type: events.TypeSyncStarted})

	result := &models.SyncRunResult{}
	for _, op := range snapshot {
		p.processItem(ctx, op, result)
	}

	p.bus.Publish(events.Event{Type: events.TypeSyncCompleted, Result: result})

	logging.Info("Sync run completed", map[string]interface{}{
		"success": result.Success,
		"failed":  result.Failed,
		"skipped": result.Skipped,
	})

	return result, nil
}

// processItem dispatches one operation and settles its fate.
func (p *Processor) processItem(ctx context.Context, op *models.PendingOperation, result *models.SyncRunResult) {
	res, err := p.dispatcher.Dispatch(ctx, op.Method, op.Endpoint, op.Payload)
	if err != nil {
		p.handleTransient(ctx, op, err, result)
		return
	}

	switch {
	case res.OK:
		p.commitSuccess(ctx, op, result)

	case res.Conflict:
		p.handleConflict(ctx, op, res, result)

	default:
		// Dispatcher contract violation; count as transient.
		p.handleTransient(ctx, op,
			apperrors.New(apperrors.ErrDispatchFailed, "dispatcher returned neither success nor conflict"), result)
	}
}

// commitSuccess removes a confirmed operation from the queue.
func (p *Processor) commitSuccess(ctx context.Context, op *models.PendingOperation, result *models.SyncRunResult) {
	if err := p.repo.Remove(ctx, op.ID); err != nil {
		logging.Error("Failed to remove synced operation", err,
			map[string]interface{}{"id": string(op.ID)})
	}
	result.Success++
	p.bus.Publish(events.Event{Type: events.TypeItemSynced, Item: op})
}

// handleTransient counts one failed attempt. The operation stays queued
// for the next run until the retry ceiling is exhausted, then it is
// abandoned and surfaced to observers.
func (p *Processor) handleTransient(ctx context.Context, op *models.PendingOperation, cause error, result *models.SyncRunResult) {
	if op.Retries < op.MaxRetries {
		err := p.repo.Update(ctx, op.ID, queue.Patch{
			Retries:     op.Retries + 1,
			LastError:   cause.Error(),
			LastRetryAt: p.now().UnixNano(),
		})
		if err != nil && err != store.ErrNotFound {
			logging.Error("Failed to record retry", err,
				map[string]interface{}{"id": string(op.ID)})
		}
		result.Failed++

		logging.Warn("Dispatch failed, operation kept for retry", map[string]interface{}{
			"id":          string(op.ID),
			"entity_type": op.EntityType,
			"entity_id":   op.EntityID,
			"retries":     op.Retries + 1,
			"max_retries": op.MaxRetries,
			"error":       cause.Error(),
		})
		return
	}

	p.abandon(ctx, op, cause, result)
}

// abandon removes an operation without remote confirmation and reports it
// as skipped. The engine keeps no dead-letter log of its own.
func (p *Processor) abandon(ctx context.Context, op *models.PendingOperation, cause error, result *models.SyncRunResult) {
	if err := p.repo.Remove(ctx, op.ID); err != nil {
		logging.Error("Failed to remove abandoned operation", err,
			map[string]interface{}{"id": string(op.ID)})
	}
	result.Skipped++
	p.bus.Publish(events.Event{Type: events.TypeItemFailed, Item: op, Err: cause})

	logging.Warn("Operation abandoned", map[string]interface{}{
		"id":          string(op.ID),
		"entity_type": op.EntityType,
		"entity_id":   op.EntityID,
		"retries":     op.Retries,
		"error":       cause.Error(),
	})
}

// handleConflict routes a declared version conflict through the policy
// resolver and acts on its decision.
func (p *Processor) handleConflict(ctx context.Context, op *models.PendingOperation, res *transport.Result, result *models.SyncRunResult) {
	decision, err := conflict.Resolve(op.Policy, op.Payload, res.Remote)
	if err != nil {
		p.handleTransient(ctx, op,
			apperrors.Wrap(apperrors.ErrSyncConflict, "conflict resolution failed", err), result)
		return
	}

	logging.Info("Version conflict resolved", map[string]interface{}{
		"id":        string(op.ID),
		"entity_id": op.EntityID,
		"policy":    string(decision.Policy),
		"outcome":   string(decision.Outcome),
	})

	switch decision.Outcome {
	case conflict.OutcomeReplay:
		p.replay(ctx, op, op.Payload, result)

	case conflict.OutcomeMerged:
		// The merged payload is used for this dispatch only; the stored
		// payload is never mutated between attempts.
		p.replay(ctx, op, decision.Merged, result)

	case conflict.OutcomeHold:
		if err := p.repo.Hold(ctx, op.ID); err != nil && err != store.ErrNotFound {
			logging.Error("Failed to hold operation for review", err,
				map[string]interface{}{"id": string(op.ID)})
		}
		result.Failed++

	case conflict.OutcomeAbandon:
		p.abandon(ctx, op,
			apperrors.New(apperrors.ErrSyncConflict, "local change dropped: external source wins"), result)
	}
}

// replay re-dispatches immediately with the resolver's payload. A second
// conflict in the same run is not resolved again; it counts as a failed
// attempt and waits for the next run.
func (p *Processor) replay(ctx context.Context, op *models.PendingOperation, payload []byte, result *models.SyncRunResult) {
	res, err := p.dispatcher.Dispatch(ctx, op.Method, op.Endpoint, payload)
	if err != nil {
		p.handleTransient(ctx, op, err, result)
		return
	}
	if res.OK {
		p.commitSuccess(ctx, op, result)
		return
	}
	p.handleTransient(ctx, op,
		apperrors.New(apperrors.ErrSyncConflict, "conflict persisted after replay"), result)
}
