package ledger

import (
	"context"
	"errors"
)

// ErrGroupNotFound is returned when no ledger entry exists for a key.
var ErrGroupNotFound = errors.New("signal group not found")

// ErrLegNotFound is returned when a leg index does not exist in a group.
var ErrLegNotFound = errors.New("group leg not found")

// Repository is the durable store for signal groups.
type Repository interface {
	// Save upserts a whole group with its legs.
	Save(ctx context.Context, group *Group) error

	// Get returns the group for a key, or ErrGroupNotFound.
	Get(ctx context.Context, key string) (*Group, error)

	// SetLegTicket records the venue ticket assigned to a leg and moves
	// it to pending.
	SetLegTicket(ctx context.Context, key string, legIndex int, ticket int64) error

	// SetLegStatus transitions a single leg.
	SetLegStatus(ctx context.Context, key string, legIndex int, status LegStatus) error

	// SetLegStops updates a leg's protective levels. A zero take profit
	// leaves the target unset.
	SetLegStops(ctx context.Context, key string, legIndex int, stopLoss, takeProfit float64) error

	// MarkClosed flags the whole group closed once no legs remain active.
	MarkClosed(ctx context.Context, key string) error

	// ListActive returns all groups that are not closed.
	ListActive(ctx context.Context) ([]*Group, error)
}
