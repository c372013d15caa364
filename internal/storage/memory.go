package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/lookalike/internal/apperr"
	"github.com/hyperjump/lookalike/internal/models"
)

// MemoryStore keeps items in memory in insertion order.
// Suitable for tests and small seed files.
type MemoryStore struct {
	dimensions int
	items      []*models.StoredItem
	index      map[string]int
	mu         sync.RWMutex
}

// NewMemoryStore creates an empty store. When dimensions > 0 every item must have that length.
func NewMemoryStore(dimensions int) *MemoryStore {
	return &MemoryStore{
		dimensions: dimensions,
		items:      make([]*models.StoredItem, 0),
		index:      make(map[string]int),
	}
}

// Type returns the store type identifier.
func (m *MemoryStore) Type() string {
	return TypeMemory
}

// FetchAll returns copies of all items in insertion order.
func (m *MemoryStore) FetchAll(ctx context.Context) ([]*models.StoredItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.StoredItem, len(m.items))
	for i, item := range m.items {
		out[i] = item.Clone()
	}
	return out, nil
}

// Get returns a copy of the item with the given id.
func (m *MemoryStore) Get(ctx context.Context, id string) (*models.StoredItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: item %s", apperr.ErrNotFound, id)
	}
	return m.items[i].Clone(), nil
}

// Upsert validates and stores items. Existing ids keep their position. Vectors must
// match the configured length, or else the length already stored.
func (m *MemoryStore) Upsert(ctx context.Context, items []*models.StoredItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := m.dimensions
	if want <= 0 && len(m.items) > 0 {
		want = len(m.items[0].Vector)
	}
	if _, err := models.ValidateBatch(items, want); err != nil {
		return err
	}
	now := time.Now()
	for _, item := range items {
		c := item.Clone()
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		if i, ok := m.index[c.ID]; ok {
			m.items[i] = c
			continue
		}
		m.index[c.ID] = len(m.items)
		m.items = append(m.items, c)
	}
	return nil
}

// Delete removes an item by id, rebuilding the slice to keep order.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.index[id]; !ok {
		return fmt.Errorf("%w: item %s", apperr.ErrNotFound, id)
	}
	kept := make([]*models.StoredItem, 0, len(m.items))
	for _, item := range m.items {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	m.items = kept
	m.reindexLocked()
	return nil
}

// Replace swaps the whole collection. On validation failure the store is unchanged.
func (m *MemoryStore) Replace(ctx context.Context, items []*models.StoredItem) error {
	next := NewMemoryStore(m.dimensions)
	if err := next.Upsert(ctx, items); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = next.items
	m.reindexLocked()
	return nil
}

func (m *MemoryStore) reindexLocked() {
	m.index = make(map[string]int, len(m.items))
	for i, item := range m.items {
		m.index[item.ID] = i
	}
}

// Count returns the number of items.
func (m *MemoryStore) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.items)), nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error {
	return nil
}
