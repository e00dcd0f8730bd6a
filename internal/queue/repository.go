// Package queue provides the durable repository of pending operations.
// It owns the on-disk shape of a queue item and the (priority, enqueue
// time) processing order.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/kimhsiao/opsync/internal/errors"
	"github.com/kimhsiao/opsync/internal/logging"
	"github.com/kimhsiao/opsync/internal/models"
	"github.com/kimhsiao/opsync/internal/store"
	"github.com/kimhsiao/opsync/internal/uuid"
)

// DefaultMaxRetries is the retry ceiling applied when an operation does
// not specify one.
const DefaultMaxRetries = 3

// Repository persists pending operations in the durable store.
type Repository struct {
	store      store.Store
	collection string
	now        func() time.Time
}

// NewRepository creates a Repository backed by the given store.
func NewRepository(s store.Store) *Repository {
	return &Repository{
		store:      s,
		collection: models.PendingOperation{}.TableName(),
		now:        time.Now,
	}
}

// Enqueue validates the operation, applies defaults, persists it and
// returns the assigned id. A store failure here means the mutation was
// never queued; callers must treat it as fatal to the initiating action.
func (r *Repository) Enqueue(ctx context.Context, op *models.PendingOperation) (models.UUID, error) {
	if err := validate(op); err != nil {
		return "", err
	}

	stored := *op
	stored.ID = models.UUID(uuid.New())
	stored.EnqueuedAt = r.now().UnixNano()
	stored.Status = models.StatusPending
	stored.Retries = 0
	if stored.Priority == 0 {
		stored.Priority = models.PriorityMedium
	}
	if stored.MaxRetries == 0 {
		stored.MaxRetries = DefaultMaxRetries
	}
	if stored.Policy == "" {
		stored.Policy = models.PolicyLastWriteWins
	}
	if stored.Method == "" {
		stored.Method = defaultMethod(stored.Action)
	}

	rec, err := toRecord(&stored)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrEnqueueFailed, "failed to encode operation", err)
	}
	if err := r.store.Insert(ctx, r.collection, rec); err != nil {
		return "", apperrors.Wrap(apperrors.ErrEnqueueFailed, "failed to persist operation", err)
	}

	*op = stored

	logging.Debug("Enqueued pending operation", map[string]interface{}{
		"id":          string(stored.ID),
		"entity_type": stored.EntityType,
		"entity_id":   stored.EntityID,
		"action":      string(stored.Action),
		"priority":    int(stored.Priority),
	})

	return stored.ID, nil
}

// ListPending returns a consistent snapshot of operations awaiting
// automatic processing, ordered by (priority asc, enqueuedAt asc).
// Held operations are excluded until requeued.
func (r *Repository) ListPending(ctx context.Context) ([]*models.PendingOperation, error) {
	ops, err := r.listAll(ctx)
	if err != nil {
		return nil, err
	}
	pending := make([]*models.PendingOperation, 0, len(ops))
	for _, op := range ops {
		if op.Status == models.StatusPending {
			pending = append(pending, op)
		}
	}
	return pending, nil
}

// ListHeld returns operations parked for manual review, in queue order.
func (r *Repository) ListHeld(ctx context.Context) ([]*models.PendingOperation, error) {
	ops, err := r.listAll(ctx)
	if err != nil {
		return nil, err
	}
	held := make([]*models.PendingOperation, 0)
	for _, op := range ops {
		if op.Status == models.StatusHeld {
			held = append(held, op)
		}
	}
	return held, nil
}

func (r *Repository) listAll(ctx context.Context) ([]*models.PendingOperation, error) {
	recs, err := r.store.GetAllByIndex(ctx, r.collection)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrQueueRead, "failed to read queue", err)
	}
	ops := make([]*models.PendingOperation, 0, len(recs))
	for _, rec := range recs {
		op, err := fromRecord(rec)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrQueueRead, "failed to decode operation", err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// Get returns one operation by id, or store.ErrNotFound.
func (r *Repository) Get(ctx context.Context, id models.UUID) (*models.PendingOperation, error) {
	rec, err := r.store.Get(ctx, r.collection, string(id))
	if err != nil {
		return nil, err
	}
	return fromRecord(*rec)
}

// Count returns the total number of queued operations, held included.
func (r *Repository) Count(ctx context.Context) (int, error) {
	return r.store.Count(ctx, r.collection)
}

// Patch carries the only fields a caller may change after enqueue.
type Patch struct {
	Retries     int
	LastError   string
	LastRetryAt int64
}

// Update applies retry bookkeeping to an existing operation. It returns
// store.ErrNotFound if the id no longer exists; callers tolerate that
// silently (the item was processed or abandoned by a concurrent pass).
func (r *Repository) Update(ctx context.Context, id models.UUID, patch Patch) error {
	op, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	op.Retries = patch.Retries
	op.LastError = patch.LastError
	op.LastRetryAt = patch.LastRetryAt

	rec, err := toRecord(op)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStore, "failed to encode operation", err)
	}
	return r.store.Update(ctx, r.collection, string(id), rec)
}

// setStatus transitions an operation between pending and held.
func (r *Repository) setStatus(ctx context.Context, id models.UUID, status models.OperationStatus, resetRetries bool) error {
	op, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	op.Status = status
	if resetRetries {
		op.Retries = 0
		op.LastError = ""
		op.LastRetryAt = 0
	}

	rec, err := toRecord(op)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStore, "failed to encode operation", err)
	}
	return r.store.Update(ctx, r.collection, string(id), rec)
}

// Hold parks an operation for manual review, excluding it from automatic
// retries.
func (r *Repository) Hold(ctx context.Context, id models.UUID) error {
	return r.setStatus(ctx, id, models.StatusHeld, false)
}

// Requeue returns a held operation to the pending state with fresh retry
// counters. This is the entry point for resuming an operation after the
// user resolved its conflict out-of-band.
func (r *Repository) Requeue(ctx context.Context, id models.UUID) error {
	return r.setStatus(ctx, id, models.StatusPending, true)
}

// Remove deletes an operation. Removing a missing id is not an error.
func (r *Repository) Remove(ctx context.Context, id models.UUID) error {
	return r.store.Delete(ctx, r.collection, string(id))
}

// Clear drops every queued operation. Used only on explicit user
// logout/reset.
func (r *Repository) Clear(ctx context.Context) error {
	if err := r.store.Clear(ctx, r.collection); err != nil {
		return apperrors.Wrap(apperrors.ErrStore, "failed to clear queue", err)
	}
	logging.Info("Pending operation queue cleared", nil)
	return nil
}

func validate(op *models.PendingOperation) error {
	if op.EntityType == "" {
		return apperrors.New(apperrors.ErrValidation, "entity type is required")
	}
	if !op.Action.IsValid() {
		return apperrors.New(apperrors.ErrValidation, fmt.Sprintf("unknown action %q", op.Action))
	}
	if op.Endpoint == "" {
		return apperrors.New(apperrors.ErrValidation, "endpoint is required")
	}
	if op.Policy != "" && !op.Policy.IsValid() {
		return apperrors.New(apperrors.ErrValidation, fmt.Sprintf("unknown conflict policy %q", op.Policy))
	}
	if op.MaxRetries < 0 {
		return apperrors.New(apperrors.ErrValidation, "max retries must not be negative")
	}
	return nil
}

func defaultMethod(action models.Action) string {
	switch action {
	case models.ActionCreate:
		return "POST"
	case models.ActionDelete:
		return "DELETE"
	default:
		return "PUT"
	}
}

func toRecord(op *models.PendingOperation) (store.Record, error) {
	body, err := json.Marshal(op)
	if err != nil {
		return store.Record{}, err
	}
	return store.Record{
		ID:      string(op.ID),
		SortKey: int64(op.Priority),
		SortSeq: op.EnqueuedAt,
		Body:    body,
	}, nil
}

func fromRecord(rec store.Record) (*models.PendingOperation, error) {
	var op models.PendingOperation
	if err := json.Unmarshal(rec.Body, &op); err != nil {
		return nil, err
	}
	return &op, nil
}
