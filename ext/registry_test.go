package ext_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/george-itf/amazon-listing-helper-sub000/ext"
	"github.com/george-itf/amazon-listing-helper-sub000/id"
	"github.com/george-itf/amazon-listing-helper-sub000/job"
)

// ──────────────────────────────────────────────────
// Test extensions
// ──────────────────────────────────────────────────

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnJobEnqueued(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobEnqueued")
	return nil
}

func (e *allHooksExt) OnJobStarted(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobStarted")
	return nil
}

func (e *allHooksExt) OnJobCompleted(_ context.Context, _ *job.Job, _ time.Duration) error {
	e.calls = append(e.calls, "OnJobCompleted")
	return nil
}

func (e *allHooksExt) OnJobFailed(_ context.Context, _ *job.Job, _ error) error {
	e.calls = append(e.calls, "OnJobFailed")
	return nil
}

func (e *allHooksExt) OnJobRetrying(_ context.Context, _ *job.Job, _ int, _ time.Time) error {
	e.calls = append(e.calls, "OnJobRetrying")
	return nil
}

func (e *allHooksExt) OnJobDLQ(_ context.Context, _ *job.Job, _ error) error {
	e.calls = append(e.calls, "OnJobDLQ")
	return nil
}

func (e *allHooksExt) OnCycleStarted(_ context.Context, _ id.CycleID, _ int) error {
	e.calls = append(e.calls, "OnCycleStarted")
	return nil
}

func (e *allHooksExt) OnCycleCompleted(_ context.Context, _ id.CycleID, _ string, _, _ int, _ time.Duration) error {
	e.calls = append(e.calls, "OnCycleCompleted")
	return nil
}

func (e *allHooksExt) OnCronFired(_ context.Context, _ string, _ id.JobID) error {
	e.calls = append(e.calls, "OnCronFired")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// jobOnlyExt only implements job-related hooks.
type jobOnlyExt struct {
	calls []string
}

func (e *jobOnlyExt) Name() string { return "job-only" }

func (e *jobOnlyExt) OnJobEnqueued(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobEnqueued")
	return nil
}

func (e *jobOnlyExt) OnJobCompleted(_ context.Context, _ *job.Job, _ time.Duration) error {
	e.calls = append(e.calls, "OnJobCompleted")
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnJobEnqueued(_ context.Context, _ *job.Job) error {
	return errors.New("boom")
}

func (e *failingExt) OnShutdown(_ context.Context) error {
	return errors.New("shutdown boom")
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestRegistry_DispatchesToImplementedHooks(t *testing.T) {
	r := ext.NewRegistry(slog.Default())

	all := &allHooksExt{}
	jobOnly := &jobOnlyExt{}
	r.Register(all)
	r.Register(jobOnly)

	ctx := context.Background()
	j := &job.Job{ID: id.NewJobID(), Type: job.TypeSyncCycle}

	r.EmitJobEnqueued(ctx, j)
	r.EmitJobStarted(ctx, j)
	r.EmitJobCompleted(ctx, j, time.Second)
	r.EmitJobFailed(ctx, j, errors.New("x"))
	r.EmitJobRetrying(ctx, j, 1, time.Now())
	r.EmitJobDLQ(ctx, j, errors.New("x"))
	r.EmitCycleStarted(ctx, id.NewCycleID(), 5)
	r.EmitCycleCompleted(ctx, id.NewCycleID(), "partial", 3, 2, time.Minute)
	r.EmitCronFired(ctx, "sync-cycle", j.ID)
	r.EmitShutdown(ctx)

	if len(all.calls) != 10 {
		t.Errorf("all-hooks received %d calls, want 10: %v", len(all.calls), all.calls)
	}
	// jobOnly only implements two hooks; the rest must not reach it.
	if len(jobOnly.calls) != 2 {
		t.Errorf("job-only received %d calls, want 2: %v", len(jobOnly.calls), jobOnly.calls)
	}
}

func TestRegistry_HookErrorsAreSwallowed(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	r.Register(&failingExt{})
	after := &jobOnlyExt{}
	r.Register(after)

	ctx := context.Background()
	j := &job.Job{ID: id.NewJobID(), Type: job.TypePublishPrice}

	// Must not panic, and must still reach later extensions.
	r.EmitJobEnqueued(ctx, j)
	r.EmitShutdown(ctx)

	if len(after.calls) != 1 {
		t.Errorf("extension after a failing one received %d calls, want 1", len(after.calls))
	}
}

func TestRegistry_Extensions(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	r.Register(&allHooksExt{})
	r.Register(&jobOnlyExt{})

	if got := len(r.Extensions()); got != 2 {
		t.Errorf("Extensions() = %d, want 2", got)
	}
}
