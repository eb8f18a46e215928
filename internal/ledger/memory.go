package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository for tests and for running
// without a database.
type MemoryRepository struct {
	mu     sync.RWMutex
	groups map[string]*Group
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{groups: make(map[string]*Group)}
}

func (r *MemoryRepository) Save(_ context.Context, group *Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := cloneGroup(group)
	now := time.Now().UTC()
	if existing, ok := r.groups[group.Key]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	r.groups[group.Key] = cp
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, key string) (*Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[key]
	if !ok {
		return nil, ErrGroupNotFound
	}
	return cloneGroup(g), nil
}

func (r *MemoryRepository) SetLegTicket(_ context.Context, key string, legIndex int, ticket int64) error {
	return r.updateLeg(key, legIndex, func(l *Leg) {
		l.Ticket = ticket
		if l.Status == "" {
			l.Status = LegPending
		}
	})
}

func (r *MemoryRepository) SetLegStatus(_ context.Context, key string, legIndex int, status LegStatus) error {
	return r.updateLeg(key, legIndex, func(l *Leg) {
		l.Status = status
	})
}

func (r *MemoryRepository) SetLegStops(_ context.Context, key string, legIndex int, stopLoss, takeProfit float64) error {
	return r.updateLeg(key, legIndex, func(l *Leg) {
		l.StopLoss = stopLoss
		l.TakeProfit = takeProfit
	})
}

func (r *MemoryRepository) MarkClosed(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[key]
	if !ok {
		return ErrGroupNotFound
	}
	g.Closed = true
	g.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) ListActive(_ context.Context) ([]*Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Group
	for _, g := range r.groups {
		if !g.Closed {
			out = append(out, cloneGroup(g))
		}
	}
	return out, nil
}

func (r *MemoryRepository) updateLeg(key string, legIndex int, fn func(*Leg)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[key]
	if !ok {
		return ErrGroupNotFound
	}
	for i := range g.Legs {
		if g.Legs[i].Index == legIndex {
			fn(&g.Legs[i])
			g.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrLegNotFound
}

func cloneGroup(g *Group) *Group {
	cp := *g
	cp.Legs = make([]Leg, len(g.Legs))
	copy(cp.Legs, g.Legs)
	return &cp
}
