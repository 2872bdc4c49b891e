package postgres

import (
	"context"
	"fmt"

	marketsync "github.com/george-itf/amazon-listing-helper-sub000"
)

// migration is one named schema change. Statements run in order inside a
// single transaction.
type migration struct {
	name       string
	statements []string
}

// migrations is the ordered schema history. Append-only: never reorder
// or edit an applied entry.
var migrations = []migration{
	{
		name: "001_create_jobs",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS marketsync_jobs (
				id              TEXT PRIMARY KEY,
				job_type        TEXT NOT NULL,
				entity_kind     TEXT NOT NULL DEFAULT '',
				entity_id       TEXT NOT NULL DEFAULT '',
				marketplace_id  TEXT NOT NULL DEFAULT '',
				payload         BYTEA,
				result          BYTEA,
				state           TEXT NOT NULL DEFAULT 'pending',
				priority        INTEGER NOT NULL DEFAULT 0,
				max_attempts    INTEGER NOT NULL DEFAULT 3,
				attempts        INTEGER NOT NULL DEFAULT 0,
				last_error      JSONB,
				dedup_key       TEXT,
				worker_id       TEXT,
				run_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				started_at      TIMESTAMPTZ,
				completed_at    TIMESTAMPTZ,
				heartbeat_at    TIMESTAMPTZ,
				timeout_ns      BIGINT NOT NULL DEFAULT 0,
				created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_marketsync_jobs_claim
				ON marketsync_jobs (priority DESC, run_at ASC)
				WHERE state IN ('pending', 'retrying')`,
			`CREATE INDEX IF NOT EXISTS idx_marketsync_jobs_state
				ON marketsync_jobs (state)`,
			`CREATE INDEX IF NOT EXISTS idx_marketsync_jobs_heartbeat
				ON marketsync_jobs (heartbeat_at)
				WHERE state = 'running'`,
			// The dedup key only conflicts while the earlier job is
			// non-terminal; terminal states free the key for reuse.
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_marketsync_jobs_dedup
				ON marketsync_jobs (dedup_key)
				WHERE dedup_key IS NOT NULL
				  AND state IN ('pending', 'running', 'retrying')`,
		},
	},
	{
		name: "002_create_dlq",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS marketsync_dlq (
				id              TEXT PRIMARY KEY,
				job_id          TEXT NOT NULL,
				job_type        TEXT NOT NULL,
				entity_kind     TEXT NOT NULL DEFAULT '',
				entity_id       TEXT NOT NULL DEFAULT '',
				marketplace_id  TEXT NOT NULL DEFAULT '',
				payload         BYTEA,
				failure         JSONB NOT NULL,
				attempts        INTEGER NOT NULL,
				max_attempts    INTEGER NOT NULL,
				failed_at       TIMESTAMPTZ NOT NULL,
				replayed_at     TIMESTAMPTZ,
				created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_marketsync_dlq_failed_at
				ON marketsync_dlq (failed_at ASC)`,
			`CREATE INDEX IF NOT EXISTS idx_marketsync_dlq_job_type
				ON marketsync_dlq (job_type)`,
		},
	},
	{
		name: "003_create_cron_entries",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS marketsync_cron_entries (
				id              TEXT PRIMARY KEY,
				name            TEXT NOT NULL UNIQUE,
				schedule        TEXT NOT NULL,
				job_type        TEXT NOT NULL,
				payload         BYTEA,
				last_run_at     TIMESTAMPTZ,
				next_run_at     TIMESTAMPTZ,
				locked_by       TEXT,
				locked_until    TIMESTAMPTZ,
				enabled         BOOLEAN NOT NULL DEFAULT TRUE,
				created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_marketsync_cron_due
				ON marketsync_cron_entries (next_run_at ASC)
				WHERE enabled = TRUE`,
		},
	},
	{
		name: "004_create_workers_and_locks",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS marketsync_workers (
				id              TEXT PRIMARY KEY,
				hostname        TEXT NOT NULL DEFAULT '',
				concurrency     INTEGER NOT NULL DEFAULT 0,
				state           TEXT NOT NULL DEFAULT 'active',
				last_seen       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				metadata        JSONB,
				created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS marketsync_locks (
				name            TEXT PRIMARY KEY,
				holder_id       TEXT NOT NULL,
				acquired_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				expires_at      TIMESTAMPTZ NOT NULL
			)`,
		},
	},
	{
		name: "005_create_ingestion",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS marketsync_cycles (
				id              TEXT PRIMARY KEY,
				strategy        TEXT NOT NULL,
				status          TEXT NOT NULL,
				target_count    INTEGER NOT NULL DEFAULT 0,
				succeeded       INTEGER NOT NULL DEFAULT 0,
				failed          INTEGER NOT NULL DEFAULT 0,
				started_at      TIMESTAMPTZ NOT NULL,
				completed_at    TIMESTAMPTZ,
				duration_ns     BIGINT NOT NULL DEFAULT 0,
				error           TEXT NOT NULL DEFAULT '',
				created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_marketsync_cycles_recent
				ON marketsync_cycles (started_at DESC)`,
			`CREATE TABLE IF NOT EXISTS marketsync_raw_payloads (
				id              TEXT PRIMARY KEY,
				cycle_id        TEXT NOT NULL,
				entity_kind     TEXT NOT NULL,
				entity_id       TEXT NOT NULL,
				marketplace_id  TEXT NOT NULL DEFAULT '',
				source          TEXT NOT NULL,
				document        BYTEA NOT NULL,
				captured_at     TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_marketsync_payloads_cycle
				ON marketsync_raw_payloads (cycle_id)`,
			`CREATE INDEX IF NOT EXISTS idx_marketsync_payloads_entity
				ON marketsync_raw_payloads (cycle_id, entity_id)`,
			`CREATE TABLE IF NOT EXISTS marketsync_dq_issues (
				id              TEXT PRIMARY KEY,
				cycle_id        TEXT NOT NULL,
				entity_kind     TEXT NOT NULL,
				entity_id       TEXT NOT NULL,
				severity        TEXT NOT NULL,
				kind            TEXT NOT NULL,
				detail          TEXT NOT NULL DEFAULT '',
				created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_marketsync_dq_issues_cycle
				ON marketsync_dq_issues (cycle_id)`,
		},
	},
}

// requiredTables is the schema manifest checked after migrations run.
var requiredTables = []string{
	"marketsync_jobs",
	"marketsync_dlq",
	"marketsync_cron_entries",
	"marketsync_workers",
	"marketsync_locks",
	"marketsync_cycles",
	"marketsync_raw_payloads",
	"marketsync_dq_issues",
}

// Migrate applies pending schema migrations in order, then verifies the
// schema manifest. A database missing required tables after migration
// fails with marketsync.ErrSchemaUnavailable so the caller refuses to
// start rather than erroring on first use.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS marketsync_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("marketsync/postgres: create migrations table: %w", err)
	}

	for _, m := range migrations {
		var applied bool
		err = s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM marketsync_migrations WHERE name = $1)`,
			m.name,
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("marketsync/postgres: check migration %s: %w", m.name, err)
		}
		if applied {
			continue
		}

		tx, txErr := s.pool.Begin(ctx)
		if txErr != nil {
			return fmt.Errorf("marketsync/postgres: begin migration %s: %w", m.name, txErr)
		}

		var execErr error
		for _, stmt := range m.statements {
			if _, execErr = tx.Exec(ctx, stmt); execErr != nil {
				break
			}
		}
		if execErr == nil {
			_, execErr = tx.Exec(ctx,
				`INSERT INTO marketsync_migrations (name) VALUES ($1)`, m.name)
		}
		if execErr != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("marketsync/postgres: apply migration %s: %w (%w)",
				m.name, execErr, marketsync.ErrMigrationFailed)
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			return fmt.Errorf("marketsync/postgres: commit migration %s: %w", m.name, commitErr)
		}

		s.logger.Info("applied migration", "name", m.name)
	}

	return s.verifySchema(ctx)
}

// verifySchema confirms every required table exists.
func (s *Store) verifySchema(ctx context.Context) error {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = ANY($1)`,
		requiredTables,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("marketsync/postgres: verify schema: %w", err)
	}
	if count != len(requiredTables) {
		return fmt.Errorf("marketsync/postgres: %d of %d required tables present: %w",
			count, len(requiredTables), marketsync.ErrSchemaUnavailable)
	}
	return nil
}
