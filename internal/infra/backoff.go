package infra

import (
	"time"
)

const (
	// Standard backoff constants
	baseDelay = 1 * time.Second
	maxDelay  = 60 * time.Second
)

// Backoff is an exponential reconnect schedule: Base * 2^retry, capped at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff returns the 1s..60s schedule.
func DefaultBackoff() Backoff {
	return Backoff{Base: baseDelay, Max: maxDelay}
}

// Delay returns the wait before reconnect attempt retry (0-based).
// A negative retry count returns Base.
func (b Backoff) Delay(retry int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if retry < 0 {
		return min(b.Base, b.Max)
	}

	d := b.Base
	for i := 0; i < retry && d < b.Max; i++ {
		if d > b.Max/2 {
			return b.Max
		}
		d *= 2
	}
	return min(d, b.Max)
}
