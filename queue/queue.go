package queue

import (
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/george-itf/amazon-listing-helper-sub000/job"
)

// Config defines per-job-type behaviour such as rate limiting and
// concurrency.
type Config struct {
	// Type is the job type this config applies to.
	Type job.Type

	// MaxConcurrency limits how many jobs of this type may run
	// simultaneously across the local worker pool. Zero means no
	// type-specific limit (pool-wide concurrency still applies).
	MaxConcurrency int

	// RateLimit is the maximum sustained jobs per second of this type
	// that may start. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// MarketplaceConfig defines tighter limits for one marketplace within a
// job type, identified by the job's Scope.MarketplaceID.
type MarketplaceConfig struct {
	Type           job.Type
	MarketplaceID  string
	RateLimit      float64
	RateBurst      int
	MaxConcurrency int
}

// typeState tracks runtime state for a single job type.
type typeState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

// marketplaceState tracks runtime state for a type+marketplace pair.
type marketplaceState struct {
	limiter        *rate.Limiter
	maxConcurrency int
	active         int
}

// Manager controls per-type and per-marketplace rate limiting and
// concurrency. It is safe for concurrent use.
type Manager struct {
	mu           sync.Mutex
	types        map[job.Type]*typeState
	marketplaces map[string]*marketplaceState
}

// NewManager creates a Manager with the given type configurations.
// Types not listed here have no limits.
func NewManager(configs ...Config) *Manager {
	m := &Manager{
		types:        make(map[job.Type]*typeState, len(configs)),
		marketplaces: make(map[string]*marketplaceState),
	}
	for _, cfg := range configs {
		m.types[cfg.Type] = newTypeState(cfg)
	}
	return m
}

func newTypeState(cfg Config) *typeState {
	ts := &typeState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ts.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return ts
}

func marketplaceKey(t job.Type, marketplaceID string) string {
	return fmt.Sprintf("%s:%s", t, marketplaceID)
}

// Acquire checks rate limits and concurrency for the given job type and
// marketplace. If the job is allowed to proceed it increments the active
// counters and returns true. The caller MUST call Release when the job
// completes.
//
// A denied Acquire consumes nothing: concurrency is checked before any
// limiter is touched, and a rate token taken for one gate is returned
// if a later gate refuses.
func (m *Manager) Acquire(t job.Type, marketplaceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := m.types[t]
	var ms *marketplaceState
	if marketplaceID != "" {
		ms = m.marketplaces[marketplaceKey(t, marketplaceID)]
	}

	if ts != nil && ts.config.MaxConcurrency > 0 && ts.active >= ts.config.MaxConcurrency {
		return false
	}
	if ms != nil && ms.maxConcurrency > 0 && ms.active >= ms.maxConcurrency {
		return false
	}

	var typeRes *rate.Reservation
	if ts != nil && ts.limiter != nil {
		typeRes = ts.limiter.Reserve()
		if !typeRes.OK() || typeRes.Delay() > 0 {
			typeRes.Cancel()
			return false
		}
	}
	if ms != nil && ms.limiter != nil {
		mktRes := ms.limiter.Reserve()
		if !mktRes.OK() || mktRes.Delay() > 0 {
			mktRes.Cancel()
			if typeRes != nil {
				typeRes.Cancel()
			}
			return false
		}
	}

	if ts != nil {
		ts.active++
	}
	if ms != nil {
		ms.active++
	}
	return true
}

// Release decrements the active job count for the type and marketplace.
func (m *Manager) Release(t job.Type, marketplaceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ts := m.types[t]; ts != nil && ts.active > 0 {
		ts.active--
	}

	if marketplaceID != "" {
		if ms := m.marketplaces[marketplaceKey(t, marketplaceID)]; ms != nil && ms.active > 0 {
			ms.active--
		}
	}
}

// SetTypeConfig dynamically updates (or creates) a job type
// configuration, preserving the current active count.
func (m *Manager) SetTypeConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.types[cfg.Type]
	ts := newTypeState(cfg)
	if existing != nil {
		ts.active = existing.active
	}
	m.types[cfg.Type] = ts
}

// SetMarketplaceConfig configures limits for a specific marketplace
// within a job type. Calling this again for the same pair replaces the
// previous configuration, preserving the active count.
func (m *Manager) SetMarketplaceConfig(cfg MarketplaceConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := marketplaceKey(cfg.Type, cfg.MarketplaceID)
	existing := m.marketplaces[key]

	ms := &marketplaceState{maxConcurrency: cfg.MaxConcurrency}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ms.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if existing != nil {
		ms.active = existing.active
	}
	m.marketplaces[key] = ms
}

// ActiveCount returns the current number of active jobs for a type.
func (m *Manager) ActiveCount(t job.Type) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts := m.types[t]; ts != nil {
		return ts.active
	}
	return 0
}
