package infra

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket for outgoing WS control messages
// (subscribe, resubscribe). Exchanges disconnect clients that send more than
// a few per second.
// Thread-safe.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

// NewRateLimiter creates a full bucket of burst tokens refilled at perSecond.
func NewRateLimiter(burst int, perSecond float64) *RateLimiter {
	return newRateLimiter(burst, perSecond, time.Now)
}

func newRateLimiter(burst int, perSecond float64, now func() time.Time) *RateLimiter {
	return &RateLimiter{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: perSecond,
		lastRefill: now(),
		now:        now,
	}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		d := r.reserve()
		if d == 0 {
			return nil
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAcquire takes a token without blocking.
func (r *RateLimiter) TryAcquire() bool {
	return r.reserve() == 0
}

// reserve takes a token and returns 0, or returns how long until one is
// available.
func (r *RateLimiter) reserve() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	if r.tokens >= 1 {
		r.tokens--
		return 0
	}
	missing := 1 - r.tokens
	return max(time.Duration(missing/r.refillRate*float64(time.Second)), time.Millisecond)
}

// refill adds tokens based on elapsed time.
// Must be called with mutex held.
func (r *RateLimiter) refill() {
	now := r.now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.tokens = min(r.tokens+elapsed*r.refillRate, r.maxTokens)
	r.lastRefill = now
}
