package circuit

import (
	"errors"
	"testing"
	"time"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(&BreakerConfig{
		Enabled:                true,
		MaxConsecutiveFailures: 3,
		Cooldown:               time.Minute,
	})

	errVenue := errors.New("bridge timeout")

	for i := 0; i < 2; i++ {
		b.RecordFailure(errVenue)
		if ok, _ := b.Allow(); !ok {
			t.Fatalf("breaker opened after %d failures", i+1)
		}
	}

	b.RecordFailure(errVenue)
	if b.State() != StateOpen {
		t.Fatalf("expected open after 3 failures, got %s", b.State())
	}
	if ok, reason := b.Allow(); ok || reason == "" {
		t.Fatal("expected refusal with a reason while open")
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b := NewBreaker(&BreakerConfig{
		Enabled:                true,
		MaxConsecutiveFailures: 1,
		Cooldown:               10 * time.Millisecond,
	})

	b.RecordFailure(errors.New("down"))
	if b.State() != StateOpen {
		t.Fatal("expected open")
	}

	time.Sleep(20 * time.Millisecond)

	if ok, _ := b.Allow(); !ok {
		t.Fatal("expected half-open probe after cooldown")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}

	// A failed probe reopens immediately
	b.RecordFailure(errors.New("still down"))
	if b.State() != StateOpen {
		t.Fatalf("expected reopen, got %s", b.State())
	}

	time.Sleep(20 * time.Millisecond)
	if ok, _ := b.Allow(); !ok {
		t.Fatal("expected second probe")
	}
	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Fatalf("expected closed after successful probe, got %s", b.State())
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(&BreakerConfig{
		Enabled:                true,
		MaxConsecutiveFailures: 2,
		Cooldown:               time.Minute,
	})

	b.RecordFailure(errors.New("x"))
	b.RecordSuccess()
	b.RecordFailure(errors.New("x"))

	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %s", b.State())
	}
}

func TestDisabledBreakerAlwaysAllows(t *testing.T) {
	b := NewBreaker(&BreakerConfig{Enabled: false})

	for i := 0; i < 10; i++ {
		b.RecordFailure(errors.New("x"))
	}
	if ok, _ := b.Allow(); !ok {
		t.Fatal("disabled breaker refused a call")
	}
}
