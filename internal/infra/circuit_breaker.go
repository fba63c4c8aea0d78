package infra

import (
	"log/slog"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Book is trusted
	StateOpen                  // Book is stale, a resync is in flight
	StateHalfOpen              // Resync timed out, one more request allowed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker guards one book against a broken delta stream. Consecutive
// ladder rejects trip it; while it is open the engine drops deltas and waits
// for a snapshot. Allow gates resync requests so a silent exchange is asked
// again only after Timeout.
// Safe for concurrent use.
type CircuitBreaker struct {
	name string
	mu   sync.Mutex

	state        State
	failureCount int
	successCount int
	openedAt     time.Time

	failureThreshold int
	successThreshold int
	timeout          time.Duration

	now      func() time.Time
	onChange func(name string, from, to State)
}

// CircuitBreakerConfig holds configuration for creating a circuit breaker.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration

	// Now overrides the clock (tests). Nil uses time.Now.
	Now func() time.Time
	// OnChange is called after every state transition, outside the lock.
	OnChange func(name string, from, to State)
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          10 * time.Second,
	}
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &CircuitBreaker{
		name:             cfg.Name,
		state:            StateClosed,
		failureThreshold: max(cfg.FailureThreshold, 1),
		successThreshold: max(cfg.SuccessThreshold, 1),
		timeout:          cfg.Timeout,
		now:              now,
		onChange:         cfg.OnChange,
	}
}

// Allow reports whether a resync request may be sent now. While open or
// half-open it returns true at most once per Timeout.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	from := cb.state
	ok := false
	switch cb.state {
	case StateClosed:
		ok = true
	case StateOpen, StateHalfOpen:
		if cb.now().Sub(cb.openedAt) > cb.timeout {
			cb.state = StateHalfOpen
			cb.successCount = 0
			cb.openedAt = cb.now()
			ok = true
		}
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return ok
}

// RecordSuccess records a clean update or a loaded snapshot.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	from := cb.state
	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateOpen, StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = StateClosed
			cb.failureCount = 0
			cb.successCount = 0
		}
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

// RecordFailure records a rejected update. It returns true when this call
// opened the breaker.
func (cb *CircuitBreaker) RecordFailure() bool {
	cb.mu.Lock()
	from := cb.state
	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.state = StateOpen
			cb.openedAt = cb.now()
		}
	case StateHalfOpen:
		cb.state = StateOpen
		cb.successCount = 0
		cb.openedAt = cb.now()
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return from == StateClosed && to == StateOpen
}

// Trip opens the breaker immediately, e.g. when the feed disconnects.
func (cb *CircuitBreaker) Trip() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateOpen
	cb.successCount = 0
	cb.openedAt = cb.now()
	cb.mu.Unlock()

	cb.notify(from, StateOpen)
}

// GetState returns the current state (for monitoring).
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.mu.Unlock()

	cb.notify(from, StateClosed)
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from == to {
		return
	}
	slog.Info("CIRCUIT_BREAKER_TRANSITION",
		slog.String("name", cb.name),
		slog.String("from", from.String()),
		slog.String("to", to.String()))
	if cb.onChange != nil {
		cb.onChange(cb.name, from, to)
	}
}
