package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	marketsync "github.com/george-itf/amazon-listing-helper-sub000"
	"github.com/george-itf/amazon-listing-helper-sub000/id"
	"github.com/george-itf/amazon-listing-helper-sub000/job"
)

const jobColumns = `
	id, job_type, entity_kind, entity_id, marketplace_id,
	payload, result, state, priority, max_attempts, attempts,
	last_error, dedup_key, worker_id,
	run_at, started_at, completed_at, heartbeat_at, timeout_ns,
	created_at, updated_at`

// EnqueueJob persists a new job in pending state. A dedup key colliding
// with a non-terminal job trips the partial unique index and maps to
// ErrDuplicateJob.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	lastErr, err := marshalFailure(j.LastError)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO marketsync_jobs (
			id, job_type, entity_kind, entity_id, marketplace_id,
			payload, result, state, priority, max_attempts, attempts,
			last_error, dedup_key, worker_id,
			run_at, started_at, completed_at, heartbeat_at, timeout_ns,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14,
			$15, $16, $17, $18, $19,
			$20, $21
		)`,
		j.ID.String(), string(j.Type), j.Scope.EntityKind, j.Scope.EntityID, j.Scope.MarketplaceID,
		j.Payload, j.Result, string(j.State), j.Priority, j.MaxAttempts, j.Attempts,
		lastErr, nilIfEmpty(j.DedupKey), nilIfEmpty(j.WorkerID.String()),
		j.RunAt, j.StartedAt, j.CompletedAt, j.HeartbeatAt, j.Timeout.Nanoseconds(),
		j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return marketsync.ErrDuplicateJob
		}
		return dbErr("enqueue job", err)
	}
	return nil
}

// ListPending returns up to limit due pending or retrying jobs, ordered
// by priority then due time. Listing does not claim.
func (s *Store) ListPending(ctx context.Context, limit int) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM marketsync_jobs
		WHERE state IN ('pending', 'retrying')
		  AND run_at <= NOW()
		ORDER BY priority DESC, run_at ASC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, dbErr("list pending", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ClaimJob atomically transitions a pending/retrying job to running and
// increments the attempt counter. The WHERE clause is the entire
// concurrency story: a lost race matches zero rows and returns nil.
func (s *Store) ClaimJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE marketsync_jobs SET
			state = 'running',
			worker_id = $2,
			attempts = attempts + 1,
			started_at = NOW(),
			heartbeat_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND state IN ('pending', 'retrying')
		RETURNING `+jobColumns,
		jobID.String(), workerID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, dbErr("claim job", err)
	}
	return j, nil
}

// MarkSucceeded transitions a running job to succeeded.
func (s *Store) MarkSucceeded(ctx context.Context, jobID id.JobID, result []byte) error {
	return s.finishJob(ctx, jobID, job.StateSucceeded, result)
}

// MarkPartial transitions a running job to the terminal partial state.
func (s *Store) MarkPartial(ctx context.Context, jobID id.JobID, result []byte) error {
	return s.finishJob(ctx, jobID, job.StatePartial, result)
}

func (s *Store) finishJob(ctx context.Context, jobID id.JobID, state job.State, result []byte) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE marketsync_jobs SET
			state = $2, result = $3,
			completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND state = 'running'`,
		jobID.String(), string(state), result,
	)
	if err != nil {
		return dbErr("finish job", err)
	}
	if tag.RowsAffected() == 0 {
		return s.jobStateError(ctx, jobID)
	}
	return nil
}

// MarkFailed records a failure on a running job. The store decides the
// branch in one statement: terminal failed when attempts are exhausted
// or the failure code is non-retryable, otherwise back to retrying with
// the given due time.
func (s *Store) MarkFailed(ctx context.Context, jobID id.JobID, failure *marketsync.Failure, retryAt time.Time) (*job.Job, error) {
	lastErr, err := marshalFailure(failure)
	if err != nil {
		return nil, err
	}
	retryable := failure != nil && failure.Code.Retryable()

	row := s.pool.QueryRow(ctx, `
		UPDATE marketsync_jobs SET
			state = CASE WHEN attempts >= max_attempts OR NOT $2::boolean
				THEN 'failed' ELSE 'retrying' END,
			last_error = $3,
			run_at = CASE WHEN attempts >= max_attempts OR NOT $2::boolean
				THEN run_at ELSE $4 END,
			completed_at = CASE WHEN attempts >= max_attempts OR NOT $2::boolean
				THEN NOW() ELSE NULL END,
			worker_id = NULL,
			heartbeat_at = NULL,
			updated_at = NOW()
		WHERE id = $1 AND state = 'running'
		RETURNING `+jobColumns,
		jobID.String(), retryable, lastErr, retryAt,
	)

	j, scanErr := scanJob(row)
	if scanErr != nil {
		if isNoRows(scanErr) {
			return nil, s.jobStateError(ctx, jobID)
		}
		return nil, dbErr("mark job failed", scanErr)
	}
	return j, nil
}

// CancelJob cancels a pending, retrying, or running job. Returns false
// when the job is already terminal.
func (s *Store) CancelJob(ctx context.Context, jobID id.JobID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE marketsync_jobs SET
			state = 'cancelled',
			completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND state IN ('pending', 'retrying', 'running')`,
		jobID.String(),
	)
	if err != nil {
		return false, dbErr("cancel job", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if checkErr := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM marketsync_jobs WHERE id = $1)`,
			jobID.String(),
		).Scan(&exists); checkErr != nil {
			return false, dbErr("cancel job: check exists", checkErr)
		}
		if !exists {
			return false, marketsync.ErrJobNotFound
		}
		return false, nil
	}
	return true, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM marketsync_jobs
		WHERE id = $1`,
		jobID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, marketsync.ErrJobNotFound
		}
		return nil, dbErr("get job", err)
	}
	return j, nil
}

// ListJobs returns jobs matching the given options, oldest first.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM marketsync_jobs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Type != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, string(opts.Type))
		argIdx++
	}
	if opts.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, string(opts.State))
		argIdx++
	}

	query += " ORDER BY created_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, dbErr("list jobs", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM marketsync_jobs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Type != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, string(opts.Type))
		argIdx++
	}
	if opts.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, string(opts.State))
	}

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, dbErr("count jobs", err)
	}
	return count, nil
}

// HeartbeatJob updates the heartbeat timestamp for a running job owned
// by the given worker.
func (s *Store) HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE marketsync_jobs SET heartbeat_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND worker_id = $2 AND state = 'running'`,
		jobID.String(), workerID.String(),
	)
	if err != nil {
		return dbErr("heartbeat job", err)
	}
	if tag.RowsAffected() == 0 {
		// Missing job and no-longer-running job are different callers'
		// problems; report them with the matching sentinel.
		return s.jobStateError(ctx, jobID)
	}
	return nil
}

// ReapStaleJobs resets running jobs whose heartbeat expired back to
// pending, clearing the worker assignment, and returns them.
func (s *Store) ReapStaleJobs(ctx context.Context, threshold time.Duration) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE marketsync_jobs SET
			state = 'pending',
			worker_id = NULL,
			started_at = NULL,
			heartbeat_at = NULL,
			updated_at = NOW()
		WHERE state = 'running'
		  AND heartbeat_at IS NOT NULL
		  AND heartbeat_at < NOW() - make_interval(secs => $1)
		RETURNING `+jobColumns,
		threshold.Seconds(),
	)
	if err != nil {
		return nil, dbErr("reap stale jobs", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// jobStateError distinguishes a missing job from one in the wrong state.
func (s *Store) jobStateError(ctx context.Context, jobID id.JobID) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM marketsync_jobs WHERE id = $1)`,
		jobID.String(),
	).Scan(&exists); err != nil {
		return dbErr("check job exists", err)
	}
	if !exists {
		return marketsync.ErrJobNotFound
	}
	return marketsync.ErrInvalidState
}

// marshalFailure serializes a failure for the JSONB column, or nil.
func marshalFailure(f *marketsync.Failure) (any, error) {
	if f == nil {
		return nil, nil
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marketsync/postgres: marshal failure: %w", err)
	}
	return data, nil
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		idStr     string
		typeStr   string
		stateStr  string
		lastErr   []byte
		dedupKey  *string
		workerStr *string
		timeoutNs int64
	)
	err := row.Scan(
		&idStr, &typeStr, &j.Scope.EntityKind, &j.Scope.EntityID, &j.Scope.MarketplaceID,
		&j.Payload, &j.Result, &stateStr, &j.Priority, &j.MaxAttempts, &j.Attempts,
		&lastErr, &dedupKey, &workerStr,
		&j.RunAt, &j.StartedAt, &j.CompletedAt, &j.HeartbeatAt, &timeoutNs,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Type = job.Type(typeStr)
	j.State = job.State(stateStr)
	j.Timeout = time.Duration(timeoutNs)

	if len(lastErr) > 0 {
		var failure marketsync.Failure
		if unmarshalErr := json.Unmarshal(lastErr, &failure); unmarshalErr != nil {
			return nil, fmt.Errorf("marketsync/postgres: unmarshal failure: %w", unmarshalErr)
		}
		j.LastError = &failure
	}
	if dedupKey != nil {
		j.DedupKey = *dedupKey
	}

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("marketsync/postgres: parse job id %q: %w", idStr, parseErr)
	}
	j.ID = parsedID

	if workerStr != nil && *workerStr != "" {
		if parsedWorker, workerErr := id.ParseWorkerID(*workerStr); workerErr == nil {
			j.WorkerID = parsedWorker
		}
	}

	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("marketsync/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("marketsync/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
