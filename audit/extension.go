package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/george-itf/amazon-listing-helper-sub000/ext"
	"github.com/george-itf/amazon-listing-helper-sub000/id"
	"github.com/george-itf/amazon-listing-helper-sub000/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension      = (*Extension)(nil)
	_ ext.JobEnqueued    = (*Extension)(nil)
	_ ext.JobStarted     = (*Extension)(nil)
	_ ext.JobCompleted   = (*Extension)(nil)
	_ ext.JobFailed      = (*Extension)(nil)
	_ ext.JobRetrying    = (*Extension)(nil)
	_ ext.JobDLQ         = (*Extension)(nil)
	_ ext.CycleStarted   = (*Extension)(nil)
	_ ext.CycleCompleted = (*Extension)(nil)
	_ ext.CronFired      = (*Extension)(nil)
)

// Recorder is the interface audit backends must implement. It is
// defined locally so this package carries no dependency on any
// particular audit store — callers inject the concrete backend at
// wiring time.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *Event) error
}

// Event is one entry in the audit trail.
type Event struct {
	// What happened.
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details.
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *Event) error

func (f RecorderFunc) Record(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges marketsync lifecycle events to an audit trail
// backend. Each lifecycle hook emits a structured audit event through
// the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided
// Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (e *Extension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobEnqueued, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJob, nil,
		"job_type", string(j.Type),
		"entity_kind", j.Scope.EntityKind,
		"entity_id", j.Scope.EntityID,
	)
}

// OnJobStarted implements ext.JobStarted.
func (e *Extension) OnJobStarted(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobStarted, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJob, nil,
		"job_type", string(j.Type),
		"worker_id", j.WorkerID.String(),
		"attempt", j.Attempts,
	)
}

// OnJobCompleted implements ext.JobCompleted.
func (e *Extension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return e.record(ctx, ActionJobCompleted, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJob, nil,
		"job_type", string(j.Type),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobFailed implements ext.JobFailed.
func (e *Extension) OnJobFailed(ctx context.Context, j *job.Job, jobErr error) error {
	return e.record(ctx, ActionJobFailed, SeverityCritical, OutcomeFailure,
		ResourceJob, j.ID.String(), CategoryJob, jobErr,
		"job_type", string(j.Type),
		"attempts", j.Attempts,
		"max_attempts", j.MaxAttempts,
	)
}

// OnJobRetrying implements ext.JobRetrying.
func (e *Extension) OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) error {
	return e.record(ctx, ActionJobRetrying, SeverityWarning, OutcomeFailure,
		ResourceJob, j.ID.String(), CategoryJob, nil,
		"job_type", string(j.Type),
		"attempt", attempt,
		"next_run_at", nextRunAt.Format(time.RFC3339),
	)
}

// OnJobDLQ implements ext.JobDLQ.
func (e *Extension) OnJobDLQ(ctx context.Context, j *job.Job, jobErr error) error {
	return e.record(ctx, ActionJobDLQ, SeverityCritical, OutcomeFailure,
		ResourceJob, j.ID.String(), CategoryJob, jobErr,
		"job_type", string(j.Type),
		"attempts", j.Attempts,
	)
}

// ── Ingestion cycle hooks ───────────────────────────

// OnCycleStarted implements ext.CycleStarted.
func (e *Extension) OnCycleStarted(ctx context.Context, cycleID id.CycleID, targetCount int) error {
	return e.record(ctx, ActionCycleStarted, SeverityInfo, OutcomeSuccess,
		ResourceCycle, cycleID.String(), CategoryCycle, nil,
		"targets", targetCount,
	)
}

// OnCycleCompleted implements ext.CycleCompleted. Partial and failed
// cycles are recorded at elevated severity so audit consumers can alert
// on them.
func (e *Extension) OnCycleCompleted(ctx context.Context, cycleID id.CycleID, status string, succeeded, failed int, elapsed time.Duration) error {
	severity := SeverityInfo
	outcome := OutcomeSuccess
	switch status {
	case "partial":
		severity = SeverityWarning
	case "failed":
		severity = SeverityCritical
		outcome = OutcomeFailure
	}
	return e.record(ctx, ActionCycleCompleted, severity, outcome,
		ResourceCycle, cycleID.String(), CategoryCycle, nil,
		"status", status,
		"succeeded", succeeded,
		"failed", failed,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// ── Cron hooks ──────────────────────────────────────

// OnCronFired implements ext.CronFired.
func (e *Extension) OnCronFired(ctx context.Context, entryName string, jobID id.JobID) error {
	return e.record(ctx, ActionCronFired, SeverityInfo, OutcomeSuccess,
		ResourceCron, entryName, CategoryCron, nil,
		"job_id", jobID.String(),
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &Event{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit: failed to record audit event",
			slog.String("action", action),
			slog.String("resource_id", resourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}
