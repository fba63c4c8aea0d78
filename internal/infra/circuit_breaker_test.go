package infra

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(clock *fakeClock, transitions *[]State) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "BTCUSDT",
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          10 * time.Second,
		Now:              clock.Now,
		OnChange: func(_ string, _, to State) {
			if transitions != nil {
				*transitions = append(*transitions, to)
			}
		},
	})
}

func TestCircuitBreaker_AllowInClosed(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("test"))

	if !cb.Allow() {
		t.Error("Expected Allow() to return true in CLOSED state")
	}

	if cb.GetState() != StateClosed {
		t.Errorf("Expected state CLOSED, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cb := newTestBreaker(clock, nil)

	if cb.RecordFailure() || cb.RecordFailure() {
		t.Fatal("should not open before the threshold")
	}
	if cb.GetState() != StateClosed {
		t.Error("Should still be CLOSED after 2 failures")
	}

	if !cb.RecordFailure() {
		t.Error("3rd failure should report the open transition")
	}
	if cb.GetState() != StateOpen {
		t.Errorf("Expected OPEN after 3 failures, got %s", cb.GetState())
	}

	// Further failures do not report a new transition
	if cb.RecordFailure() {
		t.Error("already open")
	}

	if cb.Allow() {
		t.Error("Expected Allow() to return false before the timeout")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cb := newTestBreaker(clock, nil)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if cb.GetState() != StateClosed {
		t.Errorf("non-consecutive failures must not open, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_ResyncRetryAfterTimeout(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	var transitions []State
	cb := newTestBreaker(clock, &transitions)

	cb.Trip()

	clock.Advance(5 * time.Second)
	if cb.Allow() {
		t.Error("Expected no retry before the timeout")
	}

	clock.Advance(6 * time.Second)
	if !cb.Allow() {
		t.Fatal("Expected a retry after the timeout")
	}
	if cb.GetState() != StateHalfOpen {
		t.Errorf("Expected HALF_OPEN, got %s", cb.GetState())
	}

	// Only one retry per timeout
	if cb.Allow() {
		t.Error("Expected the retry to be rate limited")
	}
	clock.Advance(11 * time.Second)
	if !cb.Allow() {
		t.Error("Expected a second retry after another timeout")
	}

	// Snapshot arrives
	cb.RecordSuccess()
	if cb.GetState() != StateClosed {
		t.Errorf("Expected CLOSED after success, got %s", cb.GetState())
	}

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_HalfOpenFailure(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cb := newTestBreaker(clock, nil)

	cb.Trip()
	clock.Advance(11 * time.Second)
	cb.Allow()

	cb.RecordFailure()
	if cb.GetState() != StateOpen {
		t.Errorf("Expected OPEN after half-open failure, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("test"))
	cb.Trip()
	cb.Reset()

	if cb.GetState() != StateClosed {
		t.Errorf("Expected CLOSED after reset, got %s", cb.GetState())
	}
	if !cb.Allow() {
		t.Error("Expected Allow() after reset")
	}
}
