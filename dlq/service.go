package dlq

import (
	"context"
	"log/slog"
	"time"

	marketsync "github.com/george-itf/amazon-listing-helper-sub000"
	"github.com/george-itf/amazon-listing-helper-sub000/id"
	"github.com/george-itf/amazon-listing-helper-sub000/job"
)

// Service provides high-level DLQ operations over a Store.
type Service struct {
	store    Store
	jobStore job.Store
	logger   *slog.Logger
}

// NewService creates a DLQ service.
func NewService(store Store, jobStore job.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, jobStore: jobStore, logger: logger}
}

// Record archives a terminally failed job. It never returns an error:
// a failed or unavailable DLQ store is logged as a warning and swallowed
// so the worker loop keeps draining.
func (s *Service) Record(ctx context.Context, j *job.Job, failure *marketsync.Failure) {
	now := time.Now().UTC()
	entry := &Entry{
		ID:          id.NewDLQID(),
		JobID:       j.ID,
		JobType:     j.Type,
		Scope:       j.Scope,
		Payload:     j.Payload,
		Failure:     failure,
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		FailedAt:    now,
		CreatedAt:   now,
	}

	if err := s.store.PushDLQ(ctx, entry); err != nil {
		s.logger.Warn("dead letter write failed, continuing",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", string(j.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// Replay re-enqueues a DLQ entry as a new pending job and marks the
// entry as replayed. The new job gets a fresh ID, a zero attempt count,
// and runs immediately.
func (s *Service) Replay(ctx context.Context, entryID id.DLQID) (*job.Job, error) {
	entry, err := s.store.GetDLQ(ctx, entryID)
	if err != nil {
		return nil, err
	}

	j := &job.Job{
		Entity:      marketsync.NewEntity(),
		ID:          id.NewJobID(),
		Type:        entry.JobType,
		Scope:       entry.Scope,
		Payload:     entry.Payload,
		State:       job.StatePending,
		MaxAttempts: entry.MaxAttempts,
		RunAt:       time.Now().UTC(),
	}

	if err := s.jobStore.EnqueueJob(ctx, j); err != nil {
		return nil, err
	}

	if err := s.store.ReplayDLQ(ctx, entryID); err != nil {
		// The job is already enqueued. Log but don't fail.
		s.logger.Warn("mark replayed failed",
			slog.String("entry_id", entryID.String()),
			slog.String("error", err.Error()),
		)
	}

	return j, nil
}

// DLQStore returns the underlying store for direct access to List, Get,
// Purge, and Count operations.
func (s *Service) DLQStore() Store {
	return s.store
}
