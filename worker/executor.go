// Package worker provides the job execution engine — an Executor that
// invokes registered handlers through middleware, and a Pool that
// manages concurrent worker goroutines polling for jobs.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	marketsync "github.com/george-itf/amazon-listing-helper-sub000"
	"github.com/george-itf/amazon-listing-helper-sub000/backoff"
	"github.com/george-itf/amazon-listing-helper-sub000/dlq"
	"github.com/george-itf/amazon-listing-helper-sub000/ext"
	"github.com/george-itf/amazon-listing-helper-sub000/job"
	"github.com/george-itf/amazon-listing-helper-sub000/middleware"
)

// Executor runs a single claimed job through middleware and the
// registered handler, then records the outcome: success, partial,
// retry with backoff, or terminal failure with a DLQ entry.
type Executor struct {
	registry   *job.Registry
	extensions *ext.Registry
	store      job.Store
	dlqService *dlq.Service
	backoff    backoff.Strategy
	mw         middleware.Middleware
	logger     *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *job.Registry,
	extensions *ext.Registry,
	store job.Store,
	dlqService *dlq.Service,
	bo backoff.Strategy,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		registry:   registry,
		extensions: extensions,
		store:      store,
		dlqService: dlqService,
		backoff:    bo,
		mw:         middleware.Chain(mws...),
		logger:     logger,
	}
}

// Execute runs a claimed job through the middleware chain and handler.
// On success: marks succeeded, emits JobCompleted.
// On partial success: marks partial with the handler's result.
// On failure with retries remaining: marks retrying with backoff, emits JobRetrying.
// On terminal failure: marks failed, records a DLQ entry, emits JobFailed + JobDLQ.
// An unknown job type fails terminally on the spot; it would fail
// identically every attempt, so retrying it only burns the budget.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	handler, ok := e.registry.Get(j.Type)
	if !ok {
		failure := marketsync.Failf(marketsync.CodeUnknownJobType,
			"no handler registered for job type %q", j.Type)
		return e.recordFailure(ctx, j, failure, failure)
	}

	start := time.Now()

	terminal := func(ctx context.Context) ([]byte, error) {
		return handler(ctx, j)
	}

	result, err := e.mw(ctx, j, terminal)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, marketsync.ErrPartialSuccess) {
			return e.handlePartial(ctx, j, result, elapsed)
		}
		return e.recordFailure(ctx, j, marketsync.ClassifyError(err), err)
	}

	return e.handleSuccess(ctx, j, result, elapsed)
}

// handleSuccess marks the job succeeded and emits the lifecycle event.
// A job cancelled mid-flight stays cancelled; the result is discarded.
func (e *Executor) handleSuccess(ctx context.Context, j *job.Job, result []byte, elapsed time.Duration) error {
	if err := e.store.MarkSucceeded(ctx, j.ID, result); err != nil {
		if errors.Is(err, marketsync.ErrInvalidState) {
			e.logger.Info("job finished after cancellation, result discarded",
				slog.String("job_id", j.ID.String()),
				slog.String("job_type", string(j.Type)),
			)
			return nil
		}
		e.logger.Error("mark job succeeded error",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}

	e.extensions.EmitJobCompleted(ctx, j, elapsed)
	return nil
}

// handlePartial marks the job partial, keeping the handler's result
// describing what did and did not land.
func (e *Executor) handlePartial(ctx context.Context, j *job.Job, result []byte, elapsed time.Duration) error {
	if err := e.store.MarkPartial(ctx, j.ID, result); err != nil {
		if errors.Is(err, marketsync.ErrInvalidState) {
			e.logger.Info("job finished after cancellation, result discarded",
				slog.String("job_id", j.ID.String()),
				slog.String("job_type", string(j.Type)),
			)
			return nil
		}
		e.logger.Error("mark job partial error",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}

	e.logger.Warn("job completed partially",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", string(j.Type)),
	)
	e.extensions.EmitJobCompleted(ctx, j, elapsed)
	return nil
}

// recordFailure persists the failure and follows the branch the store
// took: retrying with backoff, or terminal failed with a DLQ entry.
func (e *Executor) recordFailure(ctx context.Context, j *job.Job, failure *marketsync.Failure, cause error) error {
	delay := e.backoff.Delay(j.Attempts)
	retryAt := time.Now().UTC().Add(delay)

	updated, err := e.store.MarkFailed(ctx, j.ID, failure, retryAt)
	if err != nil {
		if errors.Is(err, marketsync.ErrInvalidState) {
			// Cancelled mid-flight; cancellation already prevents retries.
			e.logger.Info("job failed after cancellation",
				slog.String("job_id", j.ID.String()),
				slog.String("job_type", string(j.Type)),
			)
			return nil
		}
		e.logger.Error("mark job failed error",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}

	if updated.State == job.StateRetrying {
		e.extensions.EmitJobRetrying(ctx, updated, updated.Attempts, updated.RunAt)
		e.logger.Info("job scheduled for retry",
			slog.String("job_id", updated.ID.String()),
			slog.String("job_type", string(updated.Type)),
			slog.Int("attempt", updated.Attempts),
			slog.Int("max_attempts", updated.MaxAttempts),
			slog.Duration("delay", delay),
			slog.String("code", string(failure.Code)),
		)
		return cause
	}

	// Terminal failure.
	e.dlqService.Record(ctx, updated, failure)
	e.extensions.EmitJobFailed(ctx, updated, cause)
	e.extensions.EmitJobDLQ(ctx, updated, cause)

	e.logger.Warn("job failed terminally",
		slog.String("job_id", updated.ID.String()),
		slog.String("job_type", string(updated.Type)),
		slog.Int("attempts", updated.Attempts),
		slog.String("code", string(failure.Code)),
		slog.String("error", failure.Message),
	)
	return cause
}
