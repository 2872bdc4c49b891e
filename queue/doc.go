// Package queue enforces worker-side dispatch gates: per-job-type rate
// limits and concurrency caps, with optional tighter limits for a
// specific marketplace within a type.
//
// The worker pool calls [Manager.Acquire] before executing a claimed job
// and [Manager.Release] after execution completes. Job types without a
// [Config] have no limits beyond the pool-wide concurrency. The rate
// gate is a token bucket (golang.org/x/time/rate); it governs how fast
// claimed jobs may start, which is distinct from the outbound
// per-endpoint-class limiter in package ratelimit.
package queue
