// Package gateway receives channel messages from the upstream chat
// bridge over a websocket and hands them to the dispatcher as events.
package gateway

import (
	"context"
	"time"
)

// MessageEvent is one new or edited channel message.
type MessageEvent struct {
	ChatID       int64     `json:"chat_id"`
	MsgID        int64     `json:"msg_id"`
	ReplyToMsgID int64     `json:"reply_to_msg_id,omitempty"`
	Text         string    `json:"text"`
	Edited       bool      `json:"edited,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Stream is a source of message events.
type Stream interface {
	// Events returns the channel the stream delivers on. The channel is
	// closed when the stream shuts down for good.
	Events() <-chan MessageEvent

	// Run connects and pumps events until the context is cancelled,
	// reconnecting on transport failures.
	Run(ctx context.Context) error
}
