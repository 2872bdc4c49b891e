package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	marketsync "github.com/george-itf/amazon-listing-helper-sub000"
	"github.com/george-itf/amazon-listing-helper-sub000/cluster"
	"github.com/george-itf/amazon-listing-helper-sub000/id"
)

// RegisterWorker adds a new worker to the fleet registry, upserting on
// re-registration after a restart.
func (s *Store) RegisterWorker(ctx context.Context, w *cluster.Worker) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO marketsync_workers (
			id, hostname, concurrency, state, last_seen, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			hostname = EXCLUDED.hostname,
			concurrency = EXCLUDED.concurrency,
			state = EXCLUDED.state,
			last_seen = EXCLUDED.last_seen,
			metadata = EXCLUDED.metadata`,
		w.ID.String(), w.Hostname, w.Concurrency,
		string(w.State), w.LastSeen, w.Metadata, w.CreatedAt,
	)
	if err != nil {
		return dbErr("register worker", err)
	}
	return nil
}

// DeregisterWorker removes a worker from the fleet registry.
func (s *Store) DeregisterWorker(ctx context.Context, workerID id.WorkerID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM marketsync_workers WHERE id = $1`,
		workerID.String(),
	)
	if err != nil {
		return dbErr("deregister worker", err)
	}
	if tag.RowsAffected() == 0 {
		return marketsync.ErrWorkerNotFound
	}
	return nil
}

// HeartbeatWorker updates the last-seen timestamp for a worker.
func (s *Store) HeartbeatWorker(ctx context.Context, workerID id.WorkerID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE marketsync_workers SET last_seen = NOW() WHERE id = $1`,
		workerID.String(),
	)
	if err != nil {
		return dbErr("heartbeat worker", err)
	}
	if tag.RowsAffected() == 0 {
		return marketsync.ErrWorkerNotFound
	}
	return nil
}

// ListWorkers returns all registered workers.
func (s *Store) ListWorkers(ctx context.Context) ([]*cluster.Worker, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, hostname, concurrency, state, last_seen, metadata, created_at
		FROM marketsync_workers
		ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, dbErr("list workers", err)
	}
	defer rows.Close()

	return collectWorkers(rows)
}

// ReapDeadWorkers returns workers whose last-seen timestamp is older
// than the given threshold.
func (s *Store) ReapDeadWorkers(ctx context.Context, threshold time.Duration) ([]*cluster.Worker, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, hostname, concurrency, state, last_seen, metadata, created_at
		FROM marketsync_workers
		WHERE last_seen < NOW() - make_interval(secs => $1)`,
		threshold.Seconds(),
	)
	if err != nil {
		return nil, dbErr("reap dead workers", err)
	}
	defer rows.Close()

	return collectWorkers(rows)
}

// AcquireLock attempts to take the named lock for workerID. A single
// upsert claims the lock when it is free, expired, or already held by
// this worker; anything else matches no row.
func (s *Store) AcquireLock(ctx context.Context, name string, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	until := now.Add(ttl)

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO marketsync_locks (name, holder_id, acquired_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			holder_id = EXCLUDED.holder_id,
			acquired_at = EXCLUDED.acquired_at,
			expires_at = EXCLUDED.expires_at
		WHERE marketsync_locks.expires_at < $3
		   OR marketsync_locks.holder_id = EXCLUDED.holder_id`,
		name, workerID.String(), now, until,
	)
	if err != nil {
		return false, dbErr("acquire lock", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RenewLock extends the TTL of a lock the worker already holds.
func (s *Store) RenewLock(ctx context.Context, name string, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	until := now.Add(ttl)

	tag, err := s.pool.Exec(ctx, `
		UPDATE marketsync_locks
		SET expires_at = $3
		WHERE name = $1 AND holder_id = $2 AND expires_at >= $4`,
		name, workerID.String(), until, now,
	)
	if err != nil {
		return false, dbErr("renew lock", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseLock frees the named lock if workerID is the holder. Releasing
// a lock held by someone else is a no-op.
func (s *Store) ReleaseLock(ctx context.Context, name string, workerID id.WorkerID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM marketsync_locks WHERE name = $1 AND holder_id = $2`,
		name, workerID.String(),
	)
	if err != nil {
		return dbErr("release lock", err)
	}
	return nil
}

// GetLock returns the current holder of the named lock, or nil if the
// lock is free or expired.
func (s *Store) GetLock(ctx context.Context, name string) (*cluster.Lock, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT name, holder_id, acquired_at, expires_at
		FROM marketsync_locks
		WHERE name = $1 AND expires_at >= NOW()`,
		name,
	)

	var (
		lock      cluster.Lock
		holderStr string
	)
	err := row.Scan(&lock.Name, &holderStr, &lock.AcquiredAt, &lock.ExpiresAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, dbErr("get lock", err)
	}

	holder, parseErr := id.ParseWorkerID(holderStr)
	if parseErr != nil {
		return nil, fmt.Errorf("marketsync/postgres: parse lock holder %q: %w", holderStr, parseErr)
	}
	lock.HolderID = holder

	return &lock, nil
}

// scanWorker scans a single worker row.
func scanWorker(row pgx.Row) (*cluster.Worker, error) {
	var (
		w        cluster.Worker
		idStr    string
		stateStr string
	)
	err := row.Scan(
		&idStr, &w.Hostname, &w.Concurrency, &stateStr,
		&w.LastSeen, &w.Metadata, &w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.State = cluster.WorkerState(stateStr)

	parsedID, parseErr := id.ParseWorkerID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("marketsync/postgres: parse worker id %q: %w", idStr, parseErr)
	}
	w.ID = parsedID

	return &w, nil
}

// collectWorkers collects all workers from query rows.
func collectWorkers(rows pgx.Rows) ([]*cluster.Worker, error) {
	var workers []*cluster.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("marketsync/postgres: scan worker row: %w", err)
		}
		workers = append(workers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("marketsync/postgres: iterate worker rows: %w", err)
	}
	return workers, nil
}
