package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	marketsync "github.com/george-itf/amazon-listing-helper-sub000"
	"github.com/george-itf/amazon-listing-helper-sub000/id"
	"github.com/george-itf/amazon-listing-helper-sub000/ingest"
)

const cycleColumns = `
	id, strategy, status, target_count, succeeded, failed,
	started_at, completed_at, duration_ns, error,
	created_at, updated_at`

// CreateCycle persists a new cycle in its initial state.
func (s *Store) CreateCycle(ctx context.Context, c *ingest.Cycle) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO marketsync_cycles (
			id, strategy, status, target_count, succeeded, failed,
			started_at, completed_at, duration_ns, error,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID.String(), string(c.Strategy), string(c.Status),
		c.TargetCount, c.Succeeded, c.Failed,
		c.StartedAt, c.CompletedAt, c.Duration.Nanoseconds(), c.Error,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return dbErr("create cycle", err)
	}
	return nil
}

// UpdateCycle records a cycle's terminal outcome.
func (s *Store) UpdateCycle(ctx context.Context, c *ingest.Cycle) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE marketsync_cycles SET
			status = $2, target_count = $3, succeeded = $4, failed = $5,
			completed_at = $6, duration_ns = $7, error = $8,
			updated_at = NOW()
		WHERE id = $1`,
		c.ID.String(), string(c.Status),
		c.TargetCount, c.Succeeded, c.Failed,
		c.CompletedAt, c.Duration.Nanoseconds(), c.Error,
	)
	if err != nil {
		return dbErr("update cycle", err)
	}
	if tag.RowsAffected() == 0 {
		return marketsync.ErrCycleNotFound
	}
	return nil
}

// GetCycle retrieves a cycle by ID.
func (s *Store) GetCycle(ctx context.Context, cycleID id.CycleID) (*ingest.Cycle, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+cycleColumns+`
		FROM marketsync_cycles
		WHERE id = $1`,
		cycleID.String(),
	)

	c, err := scanCycle(row)
	if err != nil {
		if isNoRows(err) {
			return nil, marketsync.ErrCycleNotFound
		}
		return nil, dbErr("get cycle", err)
	}
	return c, nil
}

// ListCycles returns cycles matching opts, most recent first.
func (s *Store) ListCycles(ctx context.Context, opts ingest.CycleListOpts) ([]*ingest.Cycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM marketsync_cycles WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
		argIdx++
	}

	query += " ORDER BY started_at DESC"

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
		return nil, dbErr("list cycles", err)
	}
	defer rows.Close()

	var cycles []*ingest.Cycle
	for rows.Next() {
		c, scanErr := scanCycle(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("marketsync/postgres: scan cycle row: %w", scanErr)
		}
		cycles = append(cycles, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("marketsync/postgres: iterate cycle rows: %w", err)
	}
	return cycles, nil
}

// PutRawPayload appends one fetched document.
func (s *Store) PutRawPayload(ctx context.Context, p *ingest.RawPayload) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO marketsync_raw_payloads (
			id, cycle_id, entity_kind, entity_id, marketplace_id,
			source, document, captured_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID.String(), p.CycleID.String(), p.EntityKind, p.EntityID, p.MarketplaceID,
		p.Source, p.Document, p.CapturedAt,
	)
	if err != nil {
		return dbErr("put raw payload", err)
	}
	return nil
}

// ListPayloadsByCycle returns every payload captured during a cycle.
func (s *Store) ListPayloadsByCycle(ctx context.Context, cycleID id.CycleID) ([]*ingest.RawPayload, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, cycle_id, entity_kind, entity_id, marketplace_id,
			source, document, captured_at
		FROM marketsync_raw_payloads
		WHERE cycle_id = $1
		ORDER BY captured_at ASC`,
		cycleID.String(),
	)
	if err != nil {
		return nil, dbErr("list payloads by cycle", err)
	}
	defer rows.Close()

	return collectPayloads(rows)
}

// ListPayloadsForEntity returns the payloads captured for one listing
// during a cycle, across all sources.
func (s *Store) ListPayloadsForEntity(ctx context.Context, cycleID id.CycleID, entityID string) ([]*ingest.RawPayload, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, cycle_id, entity_kind, entity_id, marketplace_id,
			source, document, captured_at
		FROM marketsync_raw_payloads
		WHERE cycle_id = $1 AND entity_id = $2
		ORDER BY captured_at ASC`,
		cycleID.String(), entityID,
	)
	if err != nil {
		return nil, dbErr("list payloads for entity", err)
	}
	defer rows.Close()

	return collectPayloads(rows)
}

// PutDQIssue records a detected data problem.
func (s *Store) PutDQIssue(ctx context.Context, issue *ingest.DQIssue) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO marketsync_dq_issues (
			id, cycle_id, entity_kind, entity_id,
			severity, kind, detail, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		issue.ID.String(), issue.CycleID.String(), issue.EntityKind, issue.EntityID,
		string(issue.Severity), issue.Kind, issue.Detail, issue.CreatedAt,
	)
	if err != nil {
		return dbErr("put dq issue", err)
	}
	return nil
}

// ListDQIssues returns the issues recorded during a cycle.
func (s *Store) ListDQIssues(ctx context.Context, cycleID id.CycleID) ([]*ingest.DQIssue, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, cycle_id, entity_kind, entity_id,
			severity, kind, detail, created_at
		FROM marketsync_dq_issues
		WHERE cycle_id = $1
		ORDER BY created_at ASC`,
		cycleID.String(),
	)
	if err != nil {
		return nil, dbErr("list dq issues", err)
	}
	defer rows.Close()

	var issues []*ingest.DQIssue
	for rows.Next() {
		var (
			issue       ingest.DQIssue
			idStr       string
			cycleIDStr  string
			severityStr string
		)
		if scanErr := rows.Scan(
			&idStr, &cycleIDStr, &issue.EntityKind, &issue.EntityID,
			&severityStr, &issue.Kind, &issue.Detail, &issue.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("marketsync/postgres: scan dq issue row: %w", scanErr)
		}

		issue.Severity = ingest.IssueSeverity(severityStr)

		parsedID, parseErr := id.Parse(idStr)
		if parseErr != nil {
			return nil, fmt.Errorf("marketsync/postgres: parse issue id %q: %w", idStr, parseErr)
		}
		issue.ID = parsedID

		parsedCycle, cycleErr := id.ParseCycleID(cycleIDStr)
		if cycleErr != nil {
			return nil, fmt.Errorf("marketsync/postgres: parse cycle id %q: %w", cycleIDStr, cycleErr)
		}
		issue.CycleID = parsedCycle

		issues = append(issues, &issue)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("marketsync/postgres: iterate dq issue rows: %w", err)
	}
	return issues, nil
}

// scanCycle scans a single cycle row.
func scanCycle(row pgx.Row) (*ingest.Cycle, error) {
	var (
		c           ingest.Cycle
		idStr       string
		strategyStr string
		statusStr   string
		durationNs  int64
	)
	err := row.Scan(
		&idStr, &strategyStr, &statusStr,
		&c.TargetCount, &c.Succeeded, &c.Failed,
		&c.StartedAt, &c.CompletedAt, &durationNs, &c.Error,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Strategy = ingest.Strategy(strategyStr)
	c.Status = ingest.CycleStatus(statusStr)
	c.Duration = time.Duration(durationNs)

	parsedID, parseErr := id.ParseCycleID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("marketsync/postgres: parse cycle id %q: %w", idStr, parseErr)
	}
	c.ID = parsedID

	return &c, nil
}

// collectPayloads collects all raw payloads from query rows.
func collectPayloads(rows pgx.Rows) ([]*ingest.RawPayload, error) {
	var payloads []*ingest.RawPayload
	for rows.Next() {
		var (
			p          ingest.RawPayload
			idStr      string
			cycleIDStr string
		)
		if err := rows.Scan(
			&idStr, &cycleIDStr, &p.EntityKind, &p.EntityID, &p.MarketplaceID,
			&p.Source, &p.Document, &p.CapturedAt,
		); err != nil {
			return nil, fmt.Errorf("marketsync/postgres: scan payload row: %w", err)
		}

		parsedID, parseErr := id.Parse(idStr)
		if parseErr != nil {
			return nil, fmt.Errorf("marketsync/postgres: parse payload id %q: %w", idStr, parseErr)
		}
		p.ID = parsedID

		parsedCycle, cycleErr := id.ParseCycleID(cycleIDStr)
		if cycleErr != nil {
			return nil, fmt.Errorf("marketsync/postgres: parse cycle id %q: %w", cycleIDStr, cycleErr)
		}
		p.CycleID = parsedCycle

		payloads = append(payloads, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("marketsync/postgres: iterate payload rows: %w", err)
	}
	return payloads, nil
}
