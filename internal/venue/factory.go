package venue

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"mt5-signal-bot/config"
)

// Provider lazily constructs and caches the venue client. Connecting to
// the bridge is deferred until the first action actually needs it, so the
// service can start while the terminal is down.
type Provider struct {
	cfg config.VenueConfig
	log zerolog.Logger

	mu     sync.RWMutex
	client Client
}

func NewProvider(cfg config.VenueConfig, logger zerolog.Logger) *Provider {
	return &Provider{cfg: cfg, log: logger}
}

// Get returns the cached client, dialing on first use.
func (p *Provider) Get(ctx context.Context) (Client, error) {
	p.mu.RLock()
	c := p.client
	p.mu.RUnlock()
	if c != nil {
		return c, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	c, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	p.client = c
	return c, nil
}

// Reset drops the cached client so the next Get redials. Called after a
// connection-level failure.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		_ = p.client.Close()
		p.client = nil
	}
}

func (p *Provider) dial(ctx context.Context) (Client, error) {
	switch p.cfg.Backend {
	case "mock":
		p.log.Warn().Msg("Using mock venue client, no orders will reach a terminal")
		return NewMockClient(), nil
	case "bridge":
		return DialBridge(ctx, p.cfg.BridgeURL, p.cfg.BridgeToken, p.cfg.CallTimeout, p.log)
	default:
		return nil, fmt.Errorf("unknown venue backend %q", p.cfg.Backend)
	}
}
