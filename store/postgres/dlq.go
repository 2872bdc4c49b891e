package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	marketsync "github.com/george-itf/amazon-listing-helper-sub000"
	"github.com/george-itf/amazon-listing-helper-sub000/dlq"
	"github.com/george-itf/amazon-listing-helper-sub000/id"
	"github.com/george-itf/amazon-listing-helper-sub000/job"
)

const dlqColumns = `
	id, job_id, job_type, entity_kind, entity_id, marketplace_id,
	payload, failure, attempts, max_attempts,
	failed_at, replayed_at, created_at`

// PushDLQ adds a terminally failed job entry to the archive.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	failure, err := marshalFailure(entry.Failure)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO marketsync_dlq (
			id, job_id, job_type, entity_kind, entity_id, marketplace_id,
			payload, failure, attempts, max_attempts,
			failed_at, replayed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		entry.ID.String(), entry.JobID.String(), string(entry.JobType),
		entry.Scope.EntityKind, entry.Scope.EntityID, entry.Scope.MarketplaceID,
		entry.Payload, failure, entry.Attempts, entry.MaxAttempts,
		entry.FailedAt, entry.ReplayedAt, entry.CreatedAt,
	)
	if err != nil {
		return dbErr("push dlq", err)
	}
	return nil
}

// ListDLQ returns entries matching the given options, oldest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	query := `SELECT ` + dlqColumns + ` FROM marketsync_dlq WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.JobType != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, string(opts.JobType))
		argIdx++
	}

	query += " ORDER BY failed_at ASC"

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
		return nil, dbErr("list dlq", err)
	}
	defer rows.Close()

	var entries []*dlq.Entry
	for rows.Next() {
		e, scanErr := scanDLQ(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("marketsync/postgres: scan dlq row: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("marketsync/postgres: iterate dlq rows: %w", err)
	}
	return entries, nil
}

// GetDLQ retrieves an entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+dlqColumns+`
		FROM marketsync_dlq
		WHERE id = $1`,
		entryID.String(),
	)

	e, err := scanDLQ(row)
	if err != nil {
		if isNoRows(err) {
			return nil, marketsync.ErrDLQNotFound
		}
		return nil, dbErr("get dlq", err)
	}
	return e, nil
}

// ReplayDLQ marks an entry as replayed.
func (s *Store) ReplayDLQ(ctx context.Context, entryID id.DLQID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE marketsync_dlq SET replayed_at = NOW() WHERE id = $1`,
		entryID.String(),
	)
	if err != nil {
		return dbErr("replay dlq", err)
	}
	if tag.RowsAffected() == 0 {
		return marketsync.ErrDLQNotFound
	}
	return nil
}

// PurgeDLQ removes entries with FailedAt before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM marketsync_dlq WHERE failed_at < $1`,
		before,
	)
	if err != nil {
		return 0, dbErr("purge dlq", err)
	}
	return tag.RowsAffected(), nil
}

// CountDLQ returns the total number of entries in the archive.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM marketsync_dlq`).Scan(&count); err != nil {
		return 0, dbErr("count dlq", err)
	}
	return count, nil
}

// scanDLQ scans a single DLQ entry row.
func scanDLQ(row pgx.Row) (*dlq.Entry, error) {
	var (
		e        dlq.Entry
		idStr    string
		jobIDStr string
		typeStr  string
		failure  []byte
	)
	err := row.Scan(
		&idStr, &jobIDStr, &typeStr,
		&e.Scope.EntityKind, &e.Scope.EntityID, &e.Scope.MarketplaceID,
		&e.Payload, &failure, &e.Attempts, &e.MaxAttempts,
		&e.FailedAt, &e.ReplayedAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.JobType = job.Type(typeStr)

	if len(failure) > 0 {
		var f marketsync.Failure
		if unmarshalErr := json.Unmarshal(failure, &f); unmarshalErr != nil {
			return nil, fmt.Errorf("marketsync/postgres: unmarshal dlq failure: %w", unmarshalErr)
		}
		e.Failure = &f
	}

	parsedID, parseErr := id.ParseDLQID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("marketsync/postgres: parse dlq id %q: %w", idStr, parseErr)
	}
	e.ID = parsedID

	parsedJobID, jobErr := id.ParseJobID(jobIDStr)
	if jobErr != nil {
		return nil, fmt.Errorf("marketsync/postgres: parse dlq job id %q: %w", jobIDStr, jobErr)
	}
	e.JobID = parsedJobID

	return &e, nil
}
