// Package ledger tracks signal groups: the durable mapping from a source
// message to the trade legs it spawned. The ledger is the fallback source
// of truth when the venue cannot report live state.
package ledger

import (
	"strconv"
	"time"
)

// Side is the direction of a group's legs. A group never mixes sides.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// LegStatus is the lifecycle state of a single leg.
type LegStatus string

const (
	LegPending   LegStatus = "pending"
	LegFilled    LegStatus = "filled"
	LegClosed    LegStatus = "closed"
	LegCancelled LegStatus = "cancelled"
)

// Leg is one order or position belonging to a group. Index is stable
// within the group and is embedded in the venue comment tag.
type Leg struct {
	Index      int       `json:"index"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Volume     float64   `json:"volume"`
	Entry      float64   `json:"entry"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"` // 0 means unset (trailing leg)
	Ticket     int64     `json:"ticket"`      // venue ticket, 0 until acknowledged
	Status     LegStatus `json:"status"`
}

// Group is the full ledger entry for one entry signal.
type Group struct {
	Key         string    `json:"key"` // "OPEN_" + source message id
	SourceMsgID int64     `json:"source_msg_id"`
	ChatID      int64     `json:"chat_id"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Legs        []Leg     `json:"legs"`
	Closed      bool      `json:"closed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GroupKey derives the ledger key for a source message id.
func GroupKey(sourceMsgID int64) string {
	return "OPEN_" + strconv.FormatInt(sourceMsgID, 10)
}

// ActiveLegs returns the legs that still exist at the venue, either
// pending or filled.
func (g *Group) ActiveLegs() []Leg {
	var out []Leg
	for _, l := range g.Legs {
		if l.Status == LegPending || l.Status == LegFilled {
			out = append(out, l)
		}
	}
	return out
}

// FilledLegs returns the legs currently open as positions.
func (g *Group) FilledLegs() []Leg {
	var out []Leg
	for _, l := range g.Legs {
		if l.Status == LegFilled {
			out = append(out, l)
		}
	}
	return out
}

// PendingLegs returns the legs still resting as pending orders.
func (g *Group) PendingLegs() []Leg {
	var out []Leg
	for _, l := range g.Legs {
		if l.Status == LegPending {
			out = append(out, l)
		}
	}
	return out
}
