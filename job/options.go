package job

import "time"

// Options configures per-job behavior such as attempts, priority, and
// the execution timeout.
type Options struct {
	// MaxAttempts is the total number of executions allowed before the
	// job fails terminally and is dead-lettered.
	MaxAttempts int

	// Priority determines claim ordering. Higher values are claimed first.
	Priority int

	// Timeout is the maximum duration one execution may run. Exceeding it
	// fails the attempt with a TIMEOUT-coded error.
	Timeout time.Duration

	// RunAt schedules the job for future execution. Zero means immediate.
	RunAt time.Time

	// Scope identifies what the job operates on.
	Scope Scope

	// DedupKey makes creation idempotent: a second job with the same key
	// is rejected while the first is non-terminal. Empty disables dedup.
	DedupKey string
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		Priority:    0,
		Timeout:     5 * time.Minute,
	}
}

// Option is a functional option for configuring job creation.
type Option func(*Options)

// WithMaxAttempts sets the total execution budget.
func WithMaxAttempts(n int) Option {
	return func(o *Options) { o.MaxAttempts = n }
}

// WithPriority sets the job priority. Higher values are claimed first.
func WithPriority(p int) Option {
	return func(o *Options) { o.Priority = p }
}

// WithTimeout sets the maximum execution duration per attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithRunAt schedules the job for execution at a specific time.
func WithRunAt(t time.Time) Option {
	return func(o *Options) { o.RunAt = t }
}

// WithScope sets the entity scope the job operates on.
func WithScope(s Scope) Option {
	return func(o *Options) { o.Scope = s }
}

// WithDedupKey sets the idempotency key for creation.
func WithDedupKey(key string) Option {
	return func(o *Options) { o.DedupKey = key }
}
