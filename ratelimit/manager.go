package ratelimit

import "sync"

// Config declares the steady-state rate for one endpoint class.
type Config struct {
	// Class names the endpoint class, e.g. "catalog", "pricing",
	// "reports".
	Class string

	// RatePerSec is the steady-state refill rate in tokens per second.
	RatePerSec float64

	// Capacity is the maximum number of tokens the bucket can hold.
	// Defaults to RatePerSec if zero.
	Capacity float64
}

// Manager holds one Bucket per endpoint class. Looking up an
// unconfigured class creates a permissive default bucket so callers
// never receive nil.
type Manager struct {
	mu      sync.Mutex
	buckets map[string]*Bucket
}

// defaultRate is used for endpoint classes with no explicit Config.
const defaultRate = 10

// NewManager creates a Manager with a bucket per config entry.
func NewManager(configs ...Config) *Manager {
	m := &Manager{buckets: make(map[string]*Bucket, len(configs))}
	for _, cfg := range configs {
		capacity := cfg.Capacity
		if capacity <= 0 {
			capacity = cfg.RatePerSec
		}
		m.buckets[cfg.Class] = NewBucket(cfg.RatePerSec, capacity)
	}
	return m
}

// Bucket returns the bucket for an endpoint class, creating a default
// one on first use if the class was never configured.
func (m *Manager) Bucket(class string) *Bucket {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[class]
	if !ok {
		b = NewBucket(defaultRate, defaultRate)
		m.buckets[class] = b
	}
	return b
}

// MetricsByClass returns a metrics snapshot for every known bucket.
func (m *Manager) MetricsByClass() map[string]Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Metrics, len(m.buckets))
	for class, b := range m.buckets {
		out[class] = b.Metrics()
	}
	return out
}
