// Package engine turns classified signals into concrete trade actions:
// leg planning for entries, reference resolution for management messages,
// and the risk-free stop calculation.
package engine

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"mt5-signal-bot/internal/ledger"
)

// ActionType is the kind of trade action emitted downstream.
type ActionType string

const (
	ActionOpen         ActionType = "OPEN"
	ActionModify       ActionType = "MODIFY"
	ActionCancel       ActionType = "CANCEL"
	ActionClosePartial ActionType = "CLOSE_PARTIAL"
	ActionCloseAll     ActionType = "CLOSE_ALL"
)

// LegDelta is the per-leg payload of an action. For OPEN it describes the
// order to place; for MODIFY the new protective levels; for CANCEL and
// close actions the target ticket.
type LegDelta struct {
	LegIndex   int         `json:"leg_index"`
	Ticket     int64       `json:"ticket,omitempty"`
	Symbol     string      `json:"symbol,omitempty"`
	Side       ledger.Side `json:"side,omitempty"`
	Volume     float64     `json:"volume,omitempty"`
	Entry      float64     `json:"entry,omitempty"`
	StopLoss   float64     `json:"stop_loss,omitempty"`
	TakeProfit float64     `json:"take_profit,omitempty"`
	Comment    string      `json:"comment,omitempty"`
}

// Action is one structured trade instruction. ID is a pure function of
// the action's content, so replays and retries of the same message
// produce byte-identical ids and deduplicate downstream.
type Action struct {
	ID          string     `json:"id"`
	Type        ActionType `json:"type"`
	GroupKey    string     `json:"group_key"`
	SourceMsgID int64      `json:"source_msg_id"`
	Symbol      string     `json:"symbol"`
	Legs        []LegDelta `json:"legs"`
}

// NewActionID derives the deterministic id. It hashes the action type,
// source message id, group key and the sorted leg deltas; wall-clock time
// never participates.
func NewActionID(typ ActionType, sourceMsgID int64, groupKey string, legs []LegDelta) string {
	sorted := make([]LegDelta, len(legs))
	copy(sorted, legs)
	sort.Slice(sorted, func(a, b int) bool {
		if sorted[a].LegIndex != sorted[b].LegIndex {
			return sorted[a].LegIndex < sorted[b].LegIndex
		}
		return sorted[a].Ticket < sorted[b].Ticket
	})

	var b strings.Builder
	fmt.Fprintf(&b, "%s|%d|%s", typ, sourceMsgID, groupKey)
	for _, l := range sorted {
		fmt.Fprintf(&b, "|%d:%d:%s:%s:%.5f:%.5f:%.5f:%.5f",
			l.LegIndex, l.Ticket, l.Symbol, l.Side, l.Volume, l.Entry, l.StopLoss, l.TakeProfit)
	}

	sum := sha1.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// NewAction assembles an action with its derived id.
func NewAction(typ ActionType, sourceMsgID int64, groupKey, symbol string, legs []LegDelta) Action {
	return Action{
		ID:          NewActionID(typ, sourceMsgID, groupKey, legs),
		Type:        typ,
		GroupKey:    groupKey,
		SourceMsgID: sourceMsgID,
		Symbol:      symbol,
		Legs:        legs,
	}
}
