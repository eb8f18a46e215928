// Package review holds messages the engine refused to act on, with the
// reason, so an operator can inspect and replay them. Failing safe into
// this queue is always preferred over guessing at a trade.
package review

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Reason classifies why a message landed in the review queue.
type Reason string

const (
	ReasonNoMatch       Reason = "NO_MATCH"         // nothing in the catalog matched
	ReasonAmbiguous     Reason = "AMBIGUOUS"        // equal-priority rules with conflicting intents
	ReasonNoPrice       Reason = "NO_PRICE"         // entry without a usable price
	ReasonMissingAt     Reason = "MISSING_AT"       // side given but no entry price token
	ReasonInvalidRange  Reason = "INVALID_RANGE"    // dual entry ordered the wrong way
	ReasonSlotInvalid   Reason = "SLOT_INVALID"     // slot matched but failed validation
	ReasonMgmtNoQuoted  Reason = "MGMT_NO_QUOTED"   // management message with no reply link or marker
	ReasonMgmtNoGroup   Reason = "MGMT_NO_GK"       // resolved group key not in the ledger
	ReasonMixedSides    Reason = "MIXED_SIDE_GROUP" // group fills disagree on direction
	ReasonVenueRejected Reason = "VENUE_REJECTED"   // venue refused every leg of an action
)

// Item is one queued message.
type Item struct {
	ID          string    `json:"id"`
	ChatID      int64     `json:"chat_id"`
	SourceMsgID int64     `json:"source_msg_id"`
	Reason      Reason    `json:"reason"`
	Detail      string    `json:"detail"`
	RawText     string    `json:"raw_text"`
	Resolved    bool      `json:"resolved"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewItem builds a queue item with a fresh id.
func NewItem(chatID, sourceMsgID int64, reason Reason, detail, rawText string) *Item {
	return &Item{
		ID:          uuid.New().String(),
		ChatID:      chatID,
		SourceMsgID: sourceMsgID,
		Reason:      reason,
		Detail:      detail,
		RawText:     rawText,
		CreatedAt:   time.Now().UTC(),
	}
}

// Repository stores review items.
type Repository interface {
	Add(ctx context.Context, item *Item) error
	ListUnresolved(ctx context.Context, limit int) ([]*Item, error)
	Resolve(ctx context.Context, id string) error
}
