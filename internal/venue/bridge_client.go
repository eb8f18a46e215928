package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// BridgeClient talks to an MT5 terminal through a websocket bridge. Each
// request carries a correlation id; a single read loop routes responses
// back to callers.
type BridgeClient struct {
	url     string
	timeout time.Duration
	log     zerolog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan bridgeResponse

	done chan struct{}
}

var _ Client = (*BridgeClient)(nil)

type bridgeRequest struct {
	ID     string          `json:"id"`
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params,omitempty"`
}

type bridgeResponse struct {
	ID     string          `json:"id"`
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// DialBridge connects to the bridge endpoint. token may be empty when
// the bridge does not require authentication.
func DialBridge(ctx context.Context, url, token string, timeout time.Duration, logger zerolog.Logger) (*BridgeClient, error) {
	var header http.Header
	if token != "" {
		header = http.Header{"Authorization": {"Bearer " + token}}
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to venue bridge %s: %w", url, err)
	}

	c := &BridgeClient{
		url:     url,
		timeout: timeout,
		log:     logger,
		conn:    conn,
		pending: make(map[string]chan bridgeResponse),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	c.log.Info().Str("url", url).Msg("Connected to venue bridge")
	return c, nil
}

func (c *BridgeClient) readLoop() {
	defer close(c.done)
	for {
		var resp bridgeResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			c.log.Error().Err(err).Msg("Venue bridge read loop terminated")
			c.failAll(err)
			return
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (c *BridgeClient) failAll(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- bridgeResponse{ID: id, OK: false, Error: err.Error()}
	}
}

func (c *BridgeClient) call(ctx context.Context, op string, params any, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode %s params: %w", op, err)
	}

	req := bridgeRequest{ID: uuid.New().String(), Op: op, Params: raw}
	ch := make(chan bridgeResponse, 1)

	c.pendingMu.Lock()
	c.pending[req.ID] = ch
	c.pendingMu.Unlock()

	c.writeMu.Lock()
	err = c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, req.ID)
		c.pendingMu.Unlock()
		return fmt.Errorf("failed to send %s to bridge: %w", op, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if !resp.OK {
			return fmt.Errorf("bridge %s failed: %s", op, resp.Error)
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("failed to decode %s result: %w", op, err)
			}
		}
		return nil
	case <-timer.C:
		c.drop(req.ID)
		return fmt.Errorf("bridge %s timed out after %s", op, c.timeout)
	case <-ctx.Done():
		c.drop(req.ID)
		return ctx.Err()
	}
}

func (c *BridgeClient) drop(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *BridgeClient) Positions(ctx context.Context, symbol string) ([]Position, error) {
	var out []Position
	err := c.call(ctx, "positions", map[string]string{"symbol": symbol}, &out)
	return out, err
}

func (c *BridgeClient) Orders(ctx context.Context, symbol string) ([]Order, error) {
	var out []Order
	err := c.call(ctx, "orders", map[string]string{"symbol": symbol}, &out)
	return out, err
}

func (c *BridgeClient) PlaceOrder(ctx context.Context, req OrderRequest) (int64, error) {
	var out struct {
		Ticket int64 `json:"ticket"`
	}
	if err := c.call(ctx, "place_order", req, &out); err != nil {
		return 0, err
	}
	return out.Ticket, nil
}

func (c *BridgeClient) ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	return c.call(ctx, "modify_position", map[string]any{
		"ticket": ticket, "stop_loss": stopLoss, "take_profit": takeProfit,
	}, nil)
}

func (c *BridgeClient) ModifyOrder(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	return c.call(ctx, "modify_order", map[string]any{
		"ticket": ticket, "stop_loss": stopLoss, "take_profit": takeProfit,
	}, nil)
}

func (c *BridgeClient) CancelOrder(ctx context.Context, ticket int64) error {
	return c.call(ctx, "cancel_order", map[string]any{"ticket": ticket}, nil)
}

func (c *BridgeClient) ClosePosition(ctx context.Context, ticket int64, volume float64) error {
	return c.call(ctx, "close_position", map[string]any{"ticket": ticket, "volume": volume}, nil)
}

func (c *BridgeClient) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", nil, nil)
}

func (c *BridgeClient) Close() error {
	err := c.conn.Close()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
	}
	return err
}
