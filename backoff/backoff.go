// Package backoff provides retry delay strategies for job execution and
// throttled fetches. One strategy instance is shared by all call sites so
// the backoff policy is uniform and inspectable.
package backoff

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// DecorrelatedJitter
// ──────────────────────────────────────────────────

// DecorrelatedJitter implements the decorrelated-jitter policy:
// each delay is drawn from [Base, prev*3], capped at Max. This spreads
// retries of competing workers apart without the synchronized troughs of
// plain exponential backoff.
//
// The strategy carries the previous delay and is safe for concurrent use.
type DecorrelatedJitter struct {
	Base time.Duration
	Max  time.Duration

	mu   sync.Mutex
	prev time.Duration
}

// NewDecorrelatedJitter creates a decorrelated-jitter backoff strategy.
func NewDecorrelatedJitter(base, maxDelay time.Duration) *DecorrelatedJitter {
	return &DecorrelatedJitter{Base: base, Max: maxDelay}
}

// Delay returns a random duration in [Base, min(prev*3, Max)].
// The attempt number resets the sequence when it is 1.
func (d *DecorrelatedJitter) Delay(attempt int) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	if attempt <= 1 || d.prev <= 0 {
		d.prev = d.Base
	}

	upper := d.prev * 3
	if d.Max > 0 && upper > d.Max {
		upper = d.Max
	}
	if upper < d.Base {
		upper = d.Base
	}

	span := upper - d.Base
	next := d.Base
	if span > 0 {
		next += time.Duration(rand.Int64N(int64(span))) //nolint:gosec // jitter intentionally uses non-crypto rand
	}

	d.prev = next
	return next
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns the backoff used everywhere by the engine:
// decorrelated jitter with 1s base and 1m cap.
func DefaultStrategy() Strategy {
	return NewDecorrelatedJitter(1*time.Second, 1*time.Minute)
}
