package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	marketsync "github.com/george-itf/amazon-listing-helper-sub000"
	"github.com/george-itf/amazon-listing-helper-sub000/cron"
	"github.com/george-itf/amazon-listing-helper-sub000/id"
	"github.com/george-itf/amazon-listing-helper-sub000/job"
)

const cronColumns = `
	id, name, schedule, job_type, payload,
	last_run_at, next_run_at, locked_by, locked_until,
	enabled, created_at, updated_at`

// RegisterCron persists a new cron entry. The name carries a unique
// constraint, so a duplicate maps to ErrDuplicateCron.
func (s *Store) RegisterCron(ctx context.Context, entry *cron.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO marketsync_cron_entries (
			id, name, schedule, job_type, payload,
			last_run_at, next_run_at, locked_by, locked_until,
			enabled, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.ID.String(), entry.Name, entry.Schedule, string(entry.JobType), entry.Payload,
		entry.LastRunAt, entry.NextRunAt, nilIfEmpty(entry.LockedBy), entry.LockedUntil,
		entry.Enabled, entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return marketsync.ErrDuplicateCron
		}
		return dbErr("register cron", err)
	}
	return nil
}

// GetCron retrieves a cron entry by ID.
func (s *Store) GetCron(ctx context.Context, entryID id.CronID) (*cron.Entry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+cronColumns+`
		FROM marketsync_cron_entries
		WHERE id = $1`,
		entryID.String(),
	)

	e, err := scanCron(row)
	if err != nil {
		if isNoRows(err) {
			return nil, marketsync.ErrCronNotFound
		}
		return nil, dbErr("get cron", err)
	}
	return e, nil
}

// ListCrons returns all cron entries.
func (s *Store) ListCrons(ctx context.Context) ([]*cron.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+cronColumns+`
		FROM marketsync_cron_entries
		ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, dbErr("list crons", err)
	}
	defer rows.Close()

	var entries []*cron.Entry
	for rows.Next() {
		e, scanErr := scanCron(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("marketsync/postgres: scan cron row: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("marketsync/postgres: iterate cron rows: %w", err)
	}
	return entries, nil
}

// AcquireCronLock attempts to acquire the per-entry distributed lock.
// The conditional UPDATE succeeds when the lock is free, expired, or
// already held by this worker.
func (s *Store) AcquireCronLock(ctx context.Context, entryID id.CronID, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	until := now.Add(ttl)
	wID := workerID.String()

	tag, err := s.pool.Exec(ctx, `
		UPDATE marketsync_cron_entries
		SET locked_by = $2, locked_until = $3, updated_at = NOW()
		WHERE id = $1
		  AND (locked_by IS NULL OR locked_until < $4 OR locked_by = $2)`,
		entryID.String(), wID, until, now,
	)
	if err != nil {
		return false, dbErr("acquire cron lock", err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		existErr := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM marketsync_cron_entries WHERE id = $1)`,
			entryID.String(),
		).Scan(&exists)
		if existErr != nil {
			return false, dbErr("check cron exists", existErr)
		}
		if !exists {
			return false, marketsync.ErrCronNotFound
		}
		return false, nil
	}

	return true, nil
}

// ReleaseCronLock releases the per-entry lock if workerID holds it.
func (s *Store) ReleaseCronLock(ctx context.Context, entryID id.CronID, workerID id.WorkerID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE marketsync_cron_entries
		SET locked_by = NULL, locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND locked_by = $2`,
		entryID.String(), workerID.String(),
	)
	if err != nil {
		return dbErr("release cron lock", err)
	}
	return nil
}

// UpdateCronLastRun records when a cron entry last fired.
func (s *Store) UpdateCronLastRun(ctx context.Context, entryID id.CronID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE marketsync_cron_entries
		SET last_run_at = $2, updated_at = NOW()
		WHERE id = $1`,
		entryID.String(), at,
	)
	if err != nil {
		return dbErr("update cron last run", err)
	}
	if tag.RowsAffected() == 0 {
		return marketsync.ErrCronNotFound
	}
	return nil
}

// UpdateCronEntry updates a cron entry (Enabled, NextRunAt, etc.).
func (s *Store) UpdateCronEntry(ctx context.Context, entry *cron.Entry) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE marketsync_cron_entries SET
			name = $2, schedule = $3, job_type = $4, payload = $5,
			last_run_at = $6, next_run_at = $7,
			locked_by = $8, locked_until = $9,
			enabled = $10, updated_at = NOW()
		WHERE id = $1`,
		entry.ID.String(), entry.Name, entry.Schedule, string(entry.JobType), entry.Payload,
		entry.LastRunAt, entry.NextRunAt,
		nilIfEmpty(entry.LockedBy), entry.LockedUntil,
		entry.Enabled,
	)
	if err != nil {
		return dbErr("update cron entry", err)
	}
	if tag.RowsAffected() == 0 {
		return marketsync.ErrCronNotFound
	}
	return nil
}

// DeleteCron removes a cron entry by ID.
func (s *Store) DeleteCron(ctx context.Context, entryID id.CronID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM marketsync_cron_entries WHERE id = $1`, entryID.String())
	if err != nil {
		return dbErr("delete cron", err)
	}
	if tag.RowsAffected() == 0 {
		return marketsync.ErrCronNotFound
	}
	return nil
}

// scanCron scans a single cron entry row.
func scanCron(row pgx.Row) (*cron.Entry, error) {
	var (
		e       cron.Entry
		idStr   string
		typeStr string
		lockBy  *string
	)
	err := row.Scan(
		&idStr, &e.Name, &e.Schedule, &typeStr, &e.Payload,
		&e.LastRunAt, &e.NextRunAt, &lockBy, &e.LockedUntil,
		&e.Enabled, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.JobType = job.Type(typeStr)

	parsedID, parseErr := id.ParseCronID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("marketsync/postgres: parse cron id %q: %w", idStr, parseErr)
	}
	e.ID = parsedID

	if lockBy != nil {
		e.LockedBy = *lockBy
	}

	return &e, nil
}
