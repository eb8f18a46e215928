// Package venue abstracts the MT5 execution side: reading live positions
// and pending orders, and submitting order actions. Implementations: a
// websocket bridge to a real terminal and a mock for tests.
package venue

import (
	"context"
	"errors"

	"mt5-signal-bot/internal/ledger"
)

// ErrTicketNotFound is returned when a ticket no longer exists at the venue.
var ErrTicketNotFound = errors.New("ticket not found at venue")

// Position is an open position as reported by the venue.
type Position struct {
	Ticket     int64       `json:"ticket"`
	Symbol     string      `json:"symbol"`
	Side       ledger.Side `json:"side"`
	Volume     float64     `json:"volume"`
	OpenPrice  float64     `json:"open_price"`
	StopLoss   float64     `json:"stop_loss"`
	TakeProfit float64     `json:"take_profit"`
	Comment    string      `json:"comment"`
}

// Order is a resting pending order as reported by the venue.
type Order struct {
	Ticket     int64       `json:"ticket"`
	Symbol     string      `json:"symbol"`
	Side       ledger.Side `json:"side"`
	Volume     float64     `json:"volume"`
	Price      float64     `json:"price"`
	StopLoss   float64     `json:"stop_loss"`
	TakeProfit float64     `json:"take_profit"`
	Comment    string      `json:"comment"`
}

// OrderRequest asks the venue to place one pending order.
type OrderRequest struct {
	Symbol     string      `json:"symbol"`
	Side       ledger.Side `json:"side"`
	Volume     float64     `json:"volume"`
	Price      float64     `json:"price"`
	StopLoss   float64     `json:"stop_loss"`
	TakeProfit float64     `json:"take_profit"`
	Comment    string      `json:"comment"`
}

// PositionSource reads live venue state.
type PositionSource interface {
	Positions(ctx context.Context, symbol string) ([]Position, error)
	Orders(ctx context.Context, symbol string) ([]Order, error)
}

// OrderSink submits order actions to the venue.
type OrderSink interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (int64, error)
	ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error
	ModifyOrder(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error
	CancelOrder(ctx context.Context, ticket int64) error
	ClosePosition(ctx context.Context, ticket int64, volume float64) error
}

// Client is the full venue surface.
type Client interface {
	PositionSource
	OrderSink
	Ping(ctx context.Context) error
	Close() error
}
