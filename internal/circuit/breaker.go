// Package circuit provides a circuit breaker around venue calls. The
// terminal bridge can wedge or flap during broker maintenance; once it
// starts failing consistently there is no point hammering it, and a
// stale half-connected bridge is worse than an honest outage.
package circuit

import (
	"fmt"
	"sync"
	"time"
)

// BreakerState represents the circuit breaker state
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // Normal operation
	StateOpen     BreakerState = "open"      // Venue calls refused
	StateHalfOpen BreakerState = "half_open" // Probing recovery
)

// BreakerConfig holds circuit breaker configuration
type BreakerConfig struct {
	Enabled                bool          `json:"enabled"`
	MaxConsecutiveFailures int           `json:"max_consecutive_failures"` // Failures before the breaker opens
	Cooldown               time.Duration `json:"cooldown"`                 // Wait before probing again
}

// DefaultBreakerConfig returns safe defaults
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		Enabled:                true,
		MaxConsecutiveFailures: 5,
		Cooldown:               30 * time.Second,
	}
}

// Breaker tracks consecutive venue-call failures and refuses calls
// while open. A single success in half-open state closes it again.
type Breaker struct {
	config *BreakerConfig

	mu                  sync.Mutex
	state               BreakerState
	consecutiveFailures int
	lastTripTime        time.Time
	tripReason          string
	onTrip              func(reason string)
	onReset             func()
}

// NewBreaker creates a new circuit breaker
func NewBreaker(config *BreakerConfig) *Breaker {
	if config == nil {
		config = DefaultBreakerConfig()
	}
	return &Breaker{
		config: config,
		state:  StateClosed,
	}
}

// OnTrip sets the callback for when the breaker trips
func (b *Breaker) OnTrip(handler func(reason string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTrip = handler
}

// OnReset sets the callback for when the breaker closes again
func (b *Breaker) OnReset(handler func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onReset = handler
}

// Allow reports whether a venue call may proceed. While open it refuses
// until the cooldown has passed, then lets one probe through half-open.
func (b *Breaker) Allow() (bool, string) {
	if !b.config.Enabled {
		return true, ""
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		elapsed := time.Since(b.lastTripTime)
		if elapsed < b.config.Cooldown {
			remaining := b.config.Cooldown - elapsed
			return false, fmt.Sprintf("circuit breaker open, cooldown remaining: %v (reason: %s)",
				remaining.Round(time.Second), b.tripReason)
		}
		b.state = StateHalfOpen
	}

	return true, ""
}

// RecordSuccess notes a venue call that succeeded
func (b *Breaker) RecordSuccess() {
	if !b.config.Enabled {
		return
	}

	b.mu.Lock()
	b.consecutiveFailures = 0
	recovered := b.state == StateHalfOpen
	if recovered {
		b.state = StateClosed
		b.tripReason = ""
	}
	handler := b.onReset
	b.mu.Unlock()

	if recovered && handler != nil {
		go handler()
	}
}

// RecordFailure notes a venue call that failed. A failure during the
// half-open probe reopens the breaker immediately.
func (b *Breaker) RecordFailure(err error) {
	if !b.config.Enabled {
		return
	}

	b.mu.Lock()
	b.consecutiveFailures++

	tripped := false
	if b.state == StateHalfOpen || b.consecutiveFailures >= b.config.MaxConsecutiveFailures {
		if b.state != StateOpen {
			tripped = true
		}
		b.state = StateOpen
		b.lastTripTime = time.Now()
		b.tripReason = fmt.Sprintf("%d consecutive venue failures, last: %v", b.consecutiveFailures, err)
	}
	reason := b.tripReason
	handler := b.onTrip
	b.mu.Unlock()

	if tripped && handler != nil {
		go handler(reason)
	}
}

// State returns the current breaker state for diagnostics
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker closed. Operator use only.
func (b *Breaker) Reset() {
	b.mu.Lock()
	b.state = StateClosed
	b.consecutiveFailures = 0
	b.tripReason = ""
	b.mu.Unlock()
}
