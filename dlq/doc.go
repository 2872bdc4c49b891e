// Package dlq provides the dead letter archive for jobs that have
// exhausted their attempt budget. It supports inspection, replay, and
// purging.
//
// When a job fails terminally, the executor calls [Service.Record] to
// archive it. The full input snapshot, classified error, and attempt
// counts are preserved for debugging. Recording is best-effort by
// contract: a DLQ write failure is logged and swallowed — it must never
// raise out of the worker loop, even when the underlying store is not
// yet provisioned.
//
// Replaying an entry re-enqueues the original job with a fresh ID and a
// fresh attempt budget, and stamps ReplayedAt on the entry.
package dlq
