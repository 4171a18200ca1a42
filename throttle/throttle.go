// Package throttle implements a token-bucket rate limiter used by the
// sender's ingress read path to cap outgoing bandwidth, ported from the
// original diode's send/throttle.rs.
package throttle

import (
	"time"
)

// Throttle is a bits-per-second token bucket. It is not safe for concurrent
// use by multiple goroutines; each ingress connection owns its own.
type Throttle struct {
	start           time.Time
	previousElapsed time.Duration
	refreshRate     float64 // bits/s
	currentTokens   float64
	maxTokens       float64
}

// New builds a Throttle capped at rate bits per second. The bucket starts
// empty ("to try to limit bursts", per the original's comment) rather than
// full.
func New(rate float64) *Throttle {
	return &Throttle{
		start:           time.Now(),
		previousElapsed: 0,
		refreshRate:     rate,
		maxTokens:       rate,
		currentTokens:   0,
	}
}

func (t *Throttle) refresh() {
	elapsed := time.Since(t.start)
	diff := (elapsed - t.previousElapsed).Seconds()
	// Workaround for a large scheduling gap between calls (e.g. after a
	// blocking TCP read): treat it as zero elapsed time rather than let a
	// large diff mint a burst of tokens that blows past the configured rate.
	if diff > 1.0 {
		diff = 0
	}
	t.previousElapsed = elapsed

	t.currentTokens += t.refreshRate * diff
	if t.currentTokens > t.maxTokens {
		t.currentTokens = t.maxTokens
	}
}

// Limit blocks the caller until n bytes' worth of tokens are available,
// then spends them. Call it after reading n bytes from the ingress
// connection, never before.
func (t *Throttle) Limit(n int) {
	t.refresh()

	bits := float64(n) * 8
	for t.currentTokens < bits {
		time.Sleep(10 * time.Millisecond)
		t.refresh()
	}
	t.currentTokens -= bits
}
