// Package outbox records every emitted action, keyed by its
// deterministic id. The primary-key insert doubles as the final dedup
// gate: an action that was already emitted is never executed twice.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"mt5-signal-bot/internal/engine"
)

// Sink stores actions. Emit reports whether the action is new; false
// means an identical action was emitted before and must be skipped.
type Sink interface {
	Emit(ctx context.Context, action engine.Action) (bool, error)
}

// PostgresOutbox persists actions in the action_outbox table.
type PostgresOutbox struct {
	pool *pgxpool.Pool
}

var _ Sink = (*PostgresOutbox)(nil)

func NewPostgresOutbox(pool *pgxpool.Pool) *PostgresOutbox {
	return &PostgresOutbox{pool: pool}
}

func (o *PostgresOutbox) Emit(ctx context.Context, action engine.Action) (bool, error) {
	payload, err := json.Marshal(action)
	if err != nil {
		return false, fmt.Errorf("failed to encode action %s: %w", action.ID, err)
	}
	tag, err := o.pool.Exec(ctx, `
		INSERT INTO action_outbox (action_id, action_type, group_key, source_msg_id, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (action_id) DO NOTHING`,
		action.ID, action.Type, action.GroupKey, action.SourceMsgID, payload,
	)
	if err != nil {
		return false, fmt.Errorf("failed to emit action %s: %w", action.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// MemoryOutbox keeps emitted actions in memory for tests and
// databaseless runs.
type MemoryOutbox struct {
	mu      sync.Mutex
	actions map[string]engine.Action
	order   []string
}

var _ Sink = (*MemoryOutbox)(nil)

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{actions: make(map[string]engine.Action)}
}

func (o *MemoryOutbox) Emit(_ context.Context, action engine.Action) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.actions[action.ID]; ok {
		return false, nil
	}
	o.actions[action.ID] = action
	o.order = append(o.order, action.ID)
	return true, nil
}

// Actions returns the emitted actions in emission order.
func (o *MemoryOutbox) Actions() []engine.Action {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]engine.Action, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.actions[id])
	}
	return out
}
