package backoff_test

import (
	"testing"
	"time"

	"github.com/george-itf/amazon-listing-helper-sub000/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 5*time.Second)
		}
	}
}

func TestExponential_DoublesEachAttempt(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Hour)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},  // 1 * 2^0
		{2, 2 * time.Second},  // 1 * 2^1
		{3, 4 * time.Second},  // 1 * 2^2
		{4, 8 * time.Second},  // 1 * 2^3
		{5, 16 * time.Second}, // 1 * 2^4
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)

	if got := e.Delay(5); got != 10*time.Second {
		t.Errorf("Delay(5) = %v, want %v (capped at Max)", got, 10*time.Second)
	}
	if got := e.Delay(20); got != 10*time.Second {
		t.Errorf("Delay(20) = %v, want %v (capped at Max)", got, 10*time.Second)
	}
}

func TestDecorrelatedJitter_WithinBounds(t *testing.T) {
	d := backoff.NewDecorrelatedJitter(time.Second, 10*time.Second)

	for attempt := 1; attempt <= 8; attempt++ {
		got := d.Delay(attempt)
		if got < time.Second {
			t.Errorf("Delay(%d) = %v, should be >= base", attempt, got)
		}
		if got > 10*time.Second {
			t.Errorf("Delay(%d) = %v, should be <= max", attempt, got)
		}
	}
}

func TestDecorrelatedJitter_ProducesVariance(t *testing.T) {
	d := backoff.NewDecorrelatedJitter(time.Second, time.Minute)

	seen := make(map[time.Duration]bool)
	for range 100 {
		seen[d.Delay(3)] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected variance in jitter, got only %d distinct values", len(seen))
	}
}

func TestDecorrelatedJitter_ResetsOnFirstAttempt(t *testing.T) {
	d := backoff.NewDecorrelatedJitter(time.Second, time.Minute)

	// Drive the sequence up, then reset with attempt 1.
	for attempt := 1; attempt <= 5; attempt++ {
		d.Delay(attempt)
	}
	got := d.Delay(1)
	// After reset the draw is from [base, base*3].
	if got < time.Second || got > 3*time.Second {
		t.Errorf("Delay(1) after reset = %v, want within [1s, 3s]", got)
	}
}

func TestDefaultStrategy_ReturnsPositiveDelay(t *testing.T) {
	s := backoff.DefaultStrategy()
	if s == nil {
		t.Fatal("DefaultStrategy() returned nil")
	}
	d := s.Delay(1)
	if d < time.Second || d > time.Minute {
		t.Errorf("DefaultStrategy().Delay(1) = %v, want within [1s, 1m]", d)
	}
}
