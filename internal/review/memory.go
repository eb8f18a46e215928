package review

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrItemNotFound is returned when resolving an unknown item.
var ErrItemNotFound = errors.New("review item not found")

// MemoryRepository is an in-memory Repository for tests and databaseless
// runs.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*Item
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]*Item)}
}

func (r *MemoryRepository) Add(_ context.Context, item *Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *item
	r.items[item.ID] = &cp
	return nil
}

func (r *MemoryRepository) ListUnresolved(_ context.Context, limit int) ([]*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Item
	for _, it := range r.items {
		if !it.Resolved {
			cp := *it
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) Resolve(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return ErrItemNotFound
	}
	it.Resolved = true
	return nil
}
