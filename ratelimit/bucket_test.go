package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/george-itf/amazon-listing-helper-sub000/ratelimit"
)

func TestBucket_AcquireDebitsTokens(t *testing.T) {
	b := ratelimit.NewBucket(1, 5)

	for i := range 5 {
		if !b.Acquire(1) {
			t.Fatalf("acquire %d should succeed from a full bucket", i+1)
		}
	}
	if b.Acquire(1) {
		t.Fatal("sixth acquire should fail on an empty bucket")
	}

	m := b.Metrics()
	if m.Throttled != 1 {
		t.Errorf("Throttled = %d, want 1", m.Throttled)
	}
}

func TestBucket_RefillsOverTime(t *testing.T) {
	b := ratelimit.NewBucket(100, 100)
	b.Acquire(100)

	time.Sleep(50 * time.Millisecond)
	// ~5 tokens accumulated at 100/s.
	if !b.Acquire(2) {
		t.Fatal("acquire after refill window should succeed")
	}
}

func TestBucket_SustainedThroughput(t *testing.T) {
	if testing.Short() {
		t.Skip("wall-clock throughput test")
	}

	// 2 tokens/second, nothing pre-accumulated: granting 10 tokens has
	// to take at least ~4 seconds of waiting.
	b := ratelimit.NewBucket(2, 10)
	b.Acquire(10)

	start := time.Now()
	for range 10 {
		if err := b.WaitForTokens(context.Background(), 1); err != nil {
			t.Fatalf("WaitForTokens: %v", err)
		}
	}
	elapsed := time.Since(start)

	if elapsed < 4*time.Second {
		t.Errorf("10 tokens at 2/s granted in %v, want >= ~4s", elapsed)
	}

	m := b.Metrics()
	if m.TotalWait == 0 {
		t.Error("TotalWait should be nonzero after blocked waits")
	}
}

func TestBucket_WaitForTokensHonorsContext(t *testing.T) {
	b := ratelimit.NewBucket(0.1, 10)
	b.Acquire(10)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := b.WaitForTokens(ctx, 5)
	if err != context.DeadlineExceeded {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestBucket_UpdateFromServerWins(t *testing.T) {
	b := ratelimit.NewBucket(1, 100)

	// Local estimate says full; server says 3 remain.
	b.UpdateFromServer(3)
	if !b.Acquire(3) {
		t.Fatal("acquire 3 should succeed after server reported 3")
	}
	if b.Acquire(1) {
		t.Fatal("acquire past the server-reported count should fail")
	}
}

func TestBucket_UpdateFromServerClampsToCapacity(t *testing.T) {
	b := ratelimit.NewBucket(1, 10)

	b.UpdateFromServer(9999)
	if m := b.Metrics(); m.Tokens > 10 {
		t.Errorf("Tokens = %v, want <= capacity 10", m.Tokens)
	}
}

func TestBucket_HandleRateLimitError(t *testing.T) {
	b := ratelimit.NewBucket(2, 10)

	// Explicit retry hint wins.
	d := b.HandleRateLimitError(1, 7*time.Second, -1, 5)
	if !d.ShouldRetry {
		t.Fatal("first throttle should be retryable")
	}
	if d.Wait != 7*time.Second {
		t.Errorf("Wait = %v, want 7s from the retry hint", d.Wait)
	}

	// No hint: wait is derived from the deficit.
	b.UpdateFromServer(0)
	d = b.HandleRateLimitError(2, 0, -1, 4)
	if !d.ShouldRetry {
		t.Fatal("second throttle should be retryable")
	}
	if d.Wait < time.Second {
		t.Errorf("Wait = %v, want >= 1s for a 4-token deficit at 2/s", d.Wait)
	}

	// Budget exhausted.
	d = b.HandleRateLimitError(4, time.Second, -1, 1)
	if d.ShouldRetry {
		t.Error("attempt past the inline budget should not retry")
	}
}

func TestManager_DefaultBucketForUnknownClass(t *testing.T) {
	m := ratelimit.NewManager(ratelimit.Config{Class: "pricing", RatePerSec: 5})

	if m.Bucket("pricing") == nil {
		t.Fatal("configured class should have a bucket")
	}
	b := m.Bucket("never-configured")
	if b == nil {
		t.Fatal("unknown class should get a default bucket")
	}
	if got := m.Bucket("never-configured"); got != b {
		t.Error("repeated lookups should return the same bucket")
	}

	metrics := m.MetricsByClass()
	if len(metrics) != 2 {
		t.Errorf("MetricsByClass has %d entries, want 2", len(metrics))
	}
}

func TestBucket_WaitForTokensClampsToCapacity(t *testing.T) {
	b := ratelimit.NewBucket(10, 10)

	// A full bucket satisfies an oversized request immediately; waiting
	// for more tokens than the bucket can ever hold would never finish.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.WaitForTokens(ctx, 20); err != nil {
		t.Fatalf("oversized request: %v", err)
	}
	if b.Acquire(1) {
		t.Error("oversized request should have drained the whole bucket")
	}
}

func TestBucket_AcquireClampsToCapacity(t *testing.T) {
	b := ratelimit.NewBucket(10, 10)

	if !b.Acquire(20) {
		t.Fatal("oversized acquire from a full bucket should succeed as a full drain")
	}
	if b.Acquire(1) {
		t.Error("bucket should be empty after the drain")
	}
}
