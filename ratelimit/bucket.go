package ratelimit

import (
	"context"
	"sync"
	"time"
)

// maxInlineRetries bounds how many consecutive throttle responses a
// single batch may absorb before giving up and surfacing the error.
const maxInlineRetries = 3

// Metrics is a point-in-time snapshot of a bucket's operational state.
type Metrics struct {
	// Tokens is the current estimated token count.
	Tokens float64

	// TotalWait is the cumulative time callers have spent blocked in
	// WaitForTokens since the bucket was created.
	TotalWait time.Duration

	// Throttled is the number of requests that had to wait or were
	// denied because the bucket had insufficient tokens.
	Throttled int64
}

// Bucket is a token bucket for one external endpoint class. Tokens
// accumulate at a steady rate up to a capacity; each outbound request
// debits the tokens it needs. Safe for concurrent use.
type Bucket struct {
	mu         sync.Mutex
	rate       float64 // tokens per second
	capacity   float64
	tokens     float64
	lastRefill time.Time

	totalWait time.Duration
	throttled int64
}

// NewBucket creates a bucket refilling at ratePerSec tokens per second
// up to capacity. The bucket starts full.
func NewBucket(ratePerSec, capacity float64) *Bucket {
	return &Bucket{
		rate:       ratePerSec,
		capacity:   capacity,
		tokens:     capacity,
		lastRefill: time.Now(),
	}
}

// refill credits tokens for the time elapsed since the last refill.
// Caller must hold b.mu.
func (b *Bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = min(b.capacity, b.tokens+elapsed*b.rate)
	b.lastRefill = now
}

// Acquire attempts to debit n tokens without waiting. It returns false
// if the bucket holds fewer than n tokens; the caller decides whether
// to wait and retry. A request above capacity is clamped to a full
// bucket, since a larger target can never be reached.
func (b *Bucket) Acquire(n float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	n = min(n, b.capacity)
	b.refill(time.Now())
	if b.tokens < n {
		b.throttled++
		return false
	}
	b.tokens -= n
	return true
}

// WaitForTokens blocks until the bucket can supply n tokens, then debits
// them. The wait is a timed sleep sized from the current token deficit,
// not a spin loop. Returns the context error if ctx is cancelled first.
// A request above capacity is clamped to a full bucket; without the
// clamp the wait target would be unreachable and the call would never
// return.
func (b *Bucket) WaitForTokens(ctx context.Context, n float64) error {
	n = min(n, b.capacity)
	for {
		b.mu.Lock()
		now := time.Now()
		b.refill(now)
		if b.tokens >= n {
			b.tokens -= n
			b.mu.Unlock()
			return nil
		}
		deficit := n - b.tokens
		wait := time.Duration(deficit / b.rate * float64(time.Second))
		b.throttled++
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		b.mu.Lock()
		b.totalWait += wait
		b.mu.Unlock()
	}
}

// UpdateFromServer adopts an authoritative remaining-token count
// reported by the external service. Server state overwrites the local
// estimate unconditionally.
func (b *Bucket) UpdateFromServer(remaining float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens = min(b.capacity, max(0, remaining))
	b.lastRefill = time.Now()
}

// RetryDecision is the outcome of HandleRateLimitError.
type RetryDecision struct {
	// Wait is how long the caller should sleep before retrying.
	Wait time.Duration

	// ShouldRetry is false once the inline retry budget for the batch
	// is exhausted; the caller must then surface the throttle error.
	ShouldRetry bool
}

// HandleRateLimitError computes a wait-and-retry decision after the
// external service returned an explicit throttle response. attempt is
// the 1-based count of consecutive throttles seen by the current batch.
// If the response carried a retry hint it is used directly; otherwise
// the wait is derived from the token deficit. A non-negative remaining
// count is adopted into the bucket as in UpdateFromServer.
func (b *Bucket) HandleRateLimitError(attempt int, retryAfter time.Duration, remaining, needed float64) RetryDecision {
	if remaining >= 0 {
		b.UpdateFromServer(remaining)
	}
	if attempt > maxInlineRetries {
		return RetryDecision{ShouldRetry: false}
	}

	wait := retryAfter
	if wait <= 0 {
		b.mu.Lock()
		deficit := needed - b.tokens
		b.mu.Unlock()
		if deficit < 1 {
			deficit = 1
		}
		wait = time.Duration(deficit / b.rate * float64(time.Second))
	}
	return RetryDecision{Wait: wait, ShouldRetry: true}
}

// Metrics returns a snapshot of the bucket's current state.
func (b *Bucket) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(time.Now())
	return Metrics{
		Tokens:    b.tokens,
		TotalWait: b.totalWait,
		Throttled: b.throttled,
	}
}
