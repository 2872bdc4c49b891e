package marketsync

import "time"

// Config holds configuration for the engine. The embedding application
// owns loading (env, flags, files); this library only consumes the
// resolved values.
type Config struct {
	// Concurrency is the maximum number of jobs processed concurrently.
	Concurrency int

	// ClaimBatchSize is how many pending jobs one poll fetches before
	// attempting to claim them individually.
	ClaimBatchSize int

	// PollInterval is how often workers poll for new jobs.
	PollInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight jobs
	// during graceful shutdown. Jobs still running past it are left for
	// the stale-job reaper of a future worker.
	ShutdownTimeout time.Duration

	// HeartbeatInterval is how often running jobs send heartbeats.
	HeartbeatInterval time.Duration

	// StaleJobThreshold is how long a running job may go without a
	// heartbeat before it is considered orphaned and reset to pending.
	StaleJobThreshold time.Duration

	// IngestInterval is how often the scheduled ingestion cycle fires.
	IngestInterval time.Duration

	// SourceBatchSize is how many entity IDs one fetch batch carries.
	SourceBatchSize int

	// FetchTimeout bounds a single network call to an external source,
	// independent of the job-level timeout.
	FetchTimeout time.Duration

	// LongOpTimeout is the larger ceiling for report-style external
	// operations that are polled rather than awaited in one call. It
	// replaces FetchTimeout for source fetchers that declare themselves
	// long operations.
	LongOpTimeout time.Duration

	// CycleLockTTL is the TTL on the ingestion cycle's named lock.
	CycleLockTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:       10,
		ClaimBatchSize:    10,
		PollInterval:      1 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		StaleJobThreshold: 30 * time.Second,
		IngestInterval:    30 * time.Minute,
		SourceBatchSize:   20,
		FetchTimeout:      30 * time.Second,
		LongOpTimeout:     15 * time.Minute,
		CycleLockTTL:      10 * time.Minute,
	}
}
