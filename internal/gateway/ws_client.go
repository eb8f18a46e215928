package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WSClient consumes message events from the chat bridge websocket. Lost
// connections are retried with a fixed wait; the upstream bridge replays
// recent messages on reconnect, so deduplication happens downstream.
type WSClient struct {
	url           string
	token         string
	reconnectWait time.Duration
	log           zerolog.Logger
	events        chan MessageEvent
}

var _ Stream = (*WSClient)(nil)

// NewWSClient creates a stream client. token may be empty when the
// gateway does not require authentication.
func NewWSClient(url, token string, reconnectWait time.Duration, logger zerolog.Logger) *WSClient {
	return &WSClient{
		url:           url,
		token:         token,
		reconnectWait: reconnectWait,
		log:           logger,
		events:        make(chan MessageEvent, 64),
	}
}

func (c *WSClient) Events() <-chan MessageEvent {
	return c.events
}

func (c *WSClient) Run(ctx context.Context) error {
	defer close(c.events)

	for {
		if err := c.runOnce(ctx); err != nil {
			c.log.Error().Err(err).Msg("Gateway connection lost")
		}

		select {
		case <-ctx.Done():
			c.log.Info().Msg("Gateway stream stopped")
			return ctx.Err()
		case <-time.After(c.reconnectWait):
		}
	}
}

func (c *WSClient) runOnce(ctx context.Context) error {
	var header http.Header
	if c.token != "" {
		header = http.Header{"Authorization": {"Bearer " + c.token}}
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return err
	}
	defer conn.Close()
	c.log.Info().Str("url", c.url).Msg("Connected to chat gateway")

	// unblock ReadJSON when the context is cancelled
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var ev MessageEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = time.Now().UTC()
		}

		select {
		case c.events <- ev:
		case <-ctx.Done():
			return nil
		}
	}
}
