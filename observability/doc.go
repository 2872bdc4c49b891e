// Package observability provides an OpenTelemetry-based metrics
// extension for marketsync. The MetricsExtension implements lifecycle
// hooks to record system-wide counters for job enqueue, completion,
// failure, retry, DLQ, ingestion cycle, and cron events.
//
// For per-execution tracing and histograms, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
