package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore implements Store with an in-process map. It is used in tests
// and as a fallback when no durable path is configured; it does not
// survive restarts.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]Record),
	}
}

func (m *MemoryStore) collection(name string) map[string]Record {
	c, ok := m.collections[name]
	if !ok {
		c = make(map[string]Record)
		m.collections[name] = c
	}
	return c
}

// Insert adds a record to the collection.
func (m *MemoryStore) Insert(ctx context.Context, collection string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collection(collection)
	if _, exists := c[rec.ID]; exists {
		return ErrDuplicateID
	}
	c[rec.ID] = cloneRecord(rec)
	return nil
}

// Get returns the record with the given id, or ErrNotFound.
func (m *MemoryStore) Get(ctx context.Context, collection, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneRecord(rec)
	return &out, nil
}

// GetAllByIndex returns a snapshot of every record in index order.
func (m *MemoryStore) GetAllByIndex(ctx context.Context, collection string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := m.collections[collection]
	recs := make([]Record, 0, len(c))
	for _, rec := range c {
		recs = append(recs, cloneRecord(rec))
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].SortKey != recs[j].SortKey {
			return recs[i].SortKey < recs[j].SortKey
		}
		if recs[i].SortSeq != recs[j].SortSeq {
			return recs[i].SortSeq < recs[j].SortSeq
		}
		return recs[i].ID < recs[j].ID
	})
	return recs, nil
}

// Update replaces the record with the given id, or returns ErrNotFound.
func (m *MemoryStore) Update(ctx context.Context, collection, id string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collections[collection]
	if _, ok := c[id]; !ok {
		return ErrNotFound
	}
	stored := cloneRecord(rec)
	stored.ID = id
	c[id] = stored
	return nil
}

// Delete removes the record with the given id. Missing ids are ignored.
func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.collections[collection], id)
	return nil
}

// Clear removes every record in the collection.
func (m *MemoryStore) Clear(ctx context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.collections, collection)
	return nil
}

// Count returns the number of records in the collection.
func (m *MemoryStore) Count(ctx context.Context, collection string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.collections[collection]), nil
}

func cloneRecord(rec Record) Record {
	out := rec
	if rec.Body != nil {
		out.Body = append([]byte(nil), rec.Body...)
	}
	return out
}
