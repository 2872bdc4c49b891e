// Package audit is an extension that bridges lifecycle events to an
// audit trail backend.
//
// Every job, ingestion-cycle, and cron lifecycle hook emits a
// structured audit event through the [Recorder] interface. The
// extension assigns severity levels (info for normal operations,
// warning for retries and partial cycles, critical for terminal
// failures) and metadata (job type, scope, attempts, elapsed time,
// errors).
//
// # Selective filtering
//
//	audit.New(recorder,
//	    audit.WithActions(
//	        audit.ActionJobFailed,
//	        audit.ActionJobDLQ,
//	    ),
//	)
package audit
