// Package store provides the durable local store consumed by the queue
// repository. A store holds named collections of records that survive
// process restarts and can be listed through an ordering index.
package store

import (
	"context"
	"encoding/json"

	"github.com/kimhsiao/opsync/internal/errors"
)

// Record is one durable row in a collection. SortKey and SortSeq feed the
// collection's ordering index; for pending operations they carry the
// priority and enqueue timestamp. Body is opaque to the store.
type Record struct {
	ID      string
	SortKey int64
	SortSeq int64
	Body    json.RawMessage
}

// ErrNotFound is returned by Get and Update when the id does not exist in
// the collection.
var ErrNotFound = errors.New(errors.ErrNotFound, "record not found")

// ErrDuplicateID is returned by Insert when the id already exists in the
// collection.
var ErrDuplicateID = errors.New(errors.ErrConstraint, "record id already exists")

// Store is a persistent, indexed local store. Implementations must
// serialize concurrent Insert/Update/Delete calls per collection.
type Store interface {
	// Insert adds a record. Inserting an existing id is a constraint error.
	Insert(ctx context.Context, collection string, rec Record) error

	// Get returns the record with the given id, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (*Record, error)

	// GetAllByIndex returns every record ordered by (SortKey asc,
	// SortSeq asc, ID asc). The result is a snapshot; concurrent
	// mutation does not affect a sequence already returned.
	GetAllByIndex(ctx context.Context, collection string) ([]Record, error)

	// Update replaces the record with the given id, or returns ErrNotFound.
	Update(ctx context.Context, collection, id string, rec Record) error

	// Delete removes the record with the given id. Deleting a missing id
	// is not an error.
	Delete(ctx context.Context, collection, id string) error

	// Clear removes every record in the collection.
	Clear(ctx context.Context, collection string) error

	// Count returns the number of records in the collection.
	Count(ctx context.Context, collection string) (int, error)
}
