package job

import (
	"context"
	"time"

	marketsync "github.com/george-itf/amazon-listing-helper-sub000"
	"github.com/george-itf/amazon-listing-helper-sub000/id"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Type filters by job type. Empty means all types.
	Type Type
	// State filters by job state. Empty means all states.
	State State
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// Type filters by job type. Empty means all types.
	Type Type
	// State filters by job state. Empty means all states.
	State State
}

// Store defines the persistence contract for jobs.
//
// ClaimJob is the sole concurrency boundary for job ownership: it must be
// an atomic conditional transition at the storage layer, never an
// in-memory check-then-act. Under concurrent claims for the same job,
// exactly one caller receives a non-nil result.
type Store interface {
	// EnqueueJob persists a new job in pending state. If the job carries
	// a dedup key matching a non-terminal job, it fails with
	// marketsync.ErrDuplicateJob and no row is written.
	EnqueueJob(ctx context.Context, j *Job) error

	// ListPending returns up to limit due pending or retrying jobs,
	// ordered by priority (descending) then RunAt (ascending). Listing
	// does not claim: callers must ClaimJob each entry.
	ListPending(ctx context.Context, limit int) ([]*Job, error)

	// ClaimJob atomically transitions a pending/retrying job to running,
	// assigns the worker, and increments the attempt counter. It returns
	// nil (with nil error) when another claimant won or the job is no
	// longer claimable.
	ClaimJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) (*Job, error)

	// MarkSucceeded transitions a running job to succeeded and records
	// its result. Fails with marketsync.ErrInvalidState if the job is not
	// running (e.g. it was cancelled mid-flight).
	MarkSucceeded(ctx context.Context, jobID id.JobID, result []byte) error

	// MarkPartial transitions a running job to the terminal partial
	// state, recording a result describing what did and did not land.
	MarkPartial(ctx context.Context, jobID id.JobID, result []byte) error

	// MarkFailed records a failure on a running job. If attempts have
	// reached MaxAttempts, or the failure code is non-retryable (an
	// unknown job type fails identically every attempt), the job
	// transitions to terminal failed; otherwise it returns to retrying
	// with RunAt set to retryAt. The updated job is returned so callers
	// can observe which branch was taken. Fails with
	// marketsync.ErrInvalidState if the job is not running.
	MarkFailed(ctx context.Context, jobID id.JobID, failure *marketsync.Failure, retryAt time.Time) (*Job, error)

	// CancelJob cancels a pending, retrying, or running job. Returns
	// false if the job was already terminal. A running job's handler is
	// not force-terminated; cancellation prevents any future retry.
	CancelJob(ctx context.Context, jobID id.JobID) (bool, error)

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// ListJobs returns jobs matching the given options, ordered by
	// creation time.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)

	// HeartbeatJob updates the heartbeat timestamp for a running job,
	// indicating the owning worker is still alive.
	HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error

	// ReapStaleJobs resets running jobs whose last heartbeat is older
	// than the given threshold back to pending, clearing the worker
	// assignment, and returns the reset jobs. This is the lease that lets
	// a future worker re-claim jobs orphaned by a dead process.
	ReapStaleJobs(ctx context.Context, threshold time.Duration) ([]*Job, error)
}
