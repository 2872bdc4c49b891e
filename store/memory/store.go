package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	marketsync "github.com/george-itf/amazon-listing-helper-sub000"
	"github.com/george-itf/amazon-listing-helper-sub000/cluster"
	"github.com/george-itf/amazon-listing-helper-sub000/cron"
	"github.com/george-itf/amazon-listing-helper-sub000/dlq"
	"github.com/george-itf/amazon-listing-helper-sub000/id"
	"github.com/george-itf/amazon-listing-helper-sub000/ingest"
	"github.com/george-itf/amazon-listing-helper-sub000/job"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ job.Store     = (*Store)(nil)
	_ ingest.Store  = (*Store)(nil)
	_ cron.Store    = (*Store)(nil)
	_ dlq.Store     = (*Store)(nil)
	_ cluster.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	jobs     map[string]*job.Job
	cycles   map[string]*ingest.Cycle
	payloads []*ingest.RawPayload
	issues   []*ingest.DQIssue
	crons    map[string]*cron.Entry
	dlqs     map[string]*dlq.Entry
	workers  map[string]*cluster.Worker
	locks    map[string]*cluster.Lock
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:    make(map[string]*job.Job),
		cycles:  make(map[string]*ingest.Cycle),
		crons:   make(map[string]*cron.Entry),
		dlqs:    make(map[string]*dlq.Entry),
		workers: make(map[string]*cluster.Worker),
		locks:   make(map[string]*cluster.Lock),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// EnqueueJob persists a new job in pending state. A dedup key matching
// a non-terminal job rejects the enqueue.
func (m *Store) EnqueueJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return marketsync.ErrDuplicateJob
	}
	if j.DedupKey != "" {
		for _, existing := range m.jobs {
			if existing.DedupKey == j.DedupKey && !existing.State.Terminal() {
				return marketsync.ErrDuplicateJob
			}
		}
	}

	cp := *j
	if cp.State == "" {
		cp.State = job.StatePending
	}
	if cp.RunAt.IsZero() {
		cp.RunAt = time.Now().UTC()
	}
	m.jobs[key] = &cp
	return nil
}

// ListPending returns due pending/retrying jobs ordered by priority
// (descending) then RunAt (ascending). Listing does not claim.
func (m *Store) ListPending(_ context.Context, limit int) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now().UTC()
	candidates := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.State != job.StatePending && j.State != job.StateRetrying {
			continue
		}
		if j.RunAt.After(now) {
			continue
		}
		candidates = append(candidates, j)
	}

	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].Priority != candidates[b].Priority {
			return candidates[a].Priority > candidates[b].Priority
		}
		return candidates[a].RunAt.Before(candidates[b].RunAt)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]*job.Job, len(candidates))
	for i, j := range candidates {
		cp := *j
		out[i] = &cp
	}
	return out, nil
}

// ClaimJob atomically transitions a pending/retrying job to running.
// The single mutex makes the check-and-set atomic; exactly one of
// concurrent claimants observes a claimable state.
func (m *Store) ClaimJob(_ context.Context, jobID id.JobID, workerID id.WorkerID) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, marketsync.ErrJobNotFound
	}
	if j.State != job.StatePending && j.State != job.StateRetrying {
		return nil, nil // lost the race, or no longer claimable
	}

	now := time.Now().UTC()
	j.State = job.StateRunning
	j.WorkerID = workerID
	j.Attempts++
	j.StartedAt = &now
	j.HeartbeatAt = &now
	j.UpdatedAt = now

	cp := *j
	return &cp, nil
}

// MarkSucceeded transitions a running job to succeeded.
func (m *Store) MarkSucceeded(_ context.Context, jobID id.JobID, result []byte) error {
	return m.markDone(jobID, job.StateSucceeded, result)
}

// MarkPartial transitions a running job to the terminal partial state.
func (m *Store) MarkPartial(_ context.Context, jobID id.JobID, result []byte) error {
	return m.markDone(jobID, job.StatePartial, result)
}

func (m *Store) markDone(jobID id.JobID, state job.State, result []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return marketsync.ErrJobNotFound
	}
	if j.State != job.StateRunning {
		return marketsync.ErrInvalidState
	}

	now := time.Now().UTC()
	j.State = state
	j.Result = result
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// MarkFailed records a failure on a running job: terminal failed when
// attempts are exhausted or the failure is non-retryable, otherwise
// back to retrying at retryAt.
func (m *Store) MarkFailed(_ context.Context, jobID id.JobID, failure *marketsync.Failure, retryAt time.Time) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, marketsync.ErrJobNotFound
	}
	if j.State != job.StateRunning {
		return nil, marketsync.ErrInvalidState
	}

	now := time.Now().UTC()
	j.LastError = failure
	j.UpdatedAt = now
	if j.Attempts >= j.MaxAttempts || (failure != nil && !failure.Code.Retryable()) {
		j.State = job.StateFailed
		j.CompletedAt = &now
	} else {
		j.State = job.StateRetrying
		j.RunAt = retryAt
		j.WorkerID = id.WorkerID{}
		j.HeartbeatAt = nil
	}

	cp := *j
	return &cp, nil
}

// CancelJob cancels a non-terminal job. Returns false if already terminal.
func (m *Store) CancelJob(_ context.Context, jobID id.JobID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return false, marketsync.ErrJobNotFound
	}
	if j.State.Terminal() {
		return false, nil
	}

	now := time.Now().UTC()
	j.State = job.StateCancelled
	j.CompletedAt = &now
	j.UpdatedAt = now
	return true, nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, marketsync.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// ListJobs returns jobs matching opts, ordered by creation time.
func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if opts.Type != "" && j.Type != opts.Type {
			continue
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		matched = append(matched, j)
	}

	sort.Slice(matched, func(a, b int) bool {
		return matched[a].CreatedAt.Before(matched[b].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[opts.Offset:]
		}
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	out := make([]*job.Job, len(matched))
	for i, j := range matched {
		cp := *j
		out[i] = &cp
	}
	return out, nil
}

// CountJobs returns the number of jobs matching opts.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, j := range m.jobs {
		if opts.Type != "" && j.Type != opts.Type {
			continue
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		n++
	}
	return n, nil
}

// HeartbeatJob updates the heartbeat timestamp for a running job owned
// by workerID.
func (m *Store) HeartbeatJob(_ context.Context, jobID id.JobID, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return marketsync.ErrJobNotFound
	}
	if j.State != job.StateRunning || j.WorkerID.String() != workerID.String() {
		return marketsync.ErrInvalidState
	}

	now := time.Now().UTC()
	j.HeartbeatAt = &now
	j.UpdatedAt = now
	return nil
}

// ReapStaleJobs resets running jobs with stale heartbeats back to
// pending and returns them.
func (m *Store) ReapStaleJobs(_ context.Context, threshold time.Duration) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	cutoff := now.Add(-threshold)

	var reaped []*job.Job
	for _, j := range m.jobs {
		if j.State != job.StateRunning {
			continue
		}
		hb := j.StartedAt
		if j.HeartbeatAt != nil {
			hb = j.HeartbeatAt
		}
		if hb == nil || hb.After(cutoff) {
			continue
		}

		j.State = job.StatePending
		j.WorkerID = id.WorkerID{}
		j.HeartbeatAt = nil
		j.RunAt = now
		j.UpdatedAt = now

		cp := *j
		reaped = append(reaped, &cp)
	}
	return reaped, nil
}

// ──────────────────────────────────────────────────
// Ingest Store — cycles, raw payloads, DQ issues
// ──────────────────────────────────────────────────

// CreateCycle persists a new ingestion cycle.
func (m *Store) CreateCycle(_ context.Context, c *ingest.Cycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *c
	m.cycles[c.ID.String()] = &cp
	return nil
}

// UpdateCycle records a cycle's outcome.
func (m *Store) UpdateCycle(_ context.Context, c *ingest.Cycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cycles[c.ID.String()]; !ok {
		return marketsync.ErrCycleNotFound
	}
	cp := *c
	m.cycles[c.ID.String()] = &cp
	return nil
}

// GetCycle retrieves a cycle by ID.
func (m *Store) GetCycle(_ context.Context, cycleID id.CycleID) (*ingest.Cycle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.cycles[cycleID.String()]
	if !ok {
		return nil, marketsync.ErrCycleNotFound
	}
	cp := *c
	return &cp, nil
}

// ListCycles returns cycles matching opts, most recent first.
func (m *Store) ListCycles(_ context.Context, opts ingest.CycleListOpts) ([]*ingest.Cycle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*ingest.Cycle, 0, len(m.cycles))
	for _, c := range m.cycles {
		if opts.Status != "" && c.Status != opts.Status {
			continue
		}
		matched = append(matched, c)
	}

	sort.Slice(matched, func(a, b int) bool {
		return matched[a].StartedAt.After(matched[b].StartedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[opts.Offset:]
		}
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	out := make([]*ingest.Cycle, len(matched))
	for i, c := range matched {
		cp := *c
		out[i] = &cp
	}
	return out, nil
}

// PutRawPayload appends one fetched document.
func (m *Store) PutRawPayload(_ context.Context, p *ingest.RawPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	m.payloads = append(m.payloads, &cp)
	return nil
}

// ListPayloadsByCycle returns every payload captured during a cycle.
func (m *Store) ListPayloadsByCycle(_ context.Context, cycleID id.CycleID) ([]*ingest.RawPayload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*ingest.RawPayload
	for _, p := range m.payloads {
		if p.CycleID.String() != cycleID.String() {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// ListPayloadsForEntity returns a listing's payloads for one cycle.
func (m *Store) ListPayloadsForEntity(_ context.Context, cycleID id.CycleID, entityID string) ([]*ingest.RawPayload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*ingest.RawPayload
	for _, p := range m.payloads {
		if p.CycleID.String() != cycleID.String() || p.EntityID != entityID {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// PutDQIssue records a data-quality issue.
func (m *Store) PutDQIssue(_ context.Context, issue *ingest.DQIssue) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *issue
	m.issues = append(m.issues, &cp)
	return nil
}

// ListDQIssues returns the issues recorded during a cycle.
func (m *Store) ListDQIssues(_ context.Context, cycleID id.CycleID) ([]*ingest.DQIssue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*ingest.DQIssue
	for _, issue := range m.issues {
		if issue.CycleID.String() != cycleID.String() {
			continue
		}
		cp := *issue
		out = append(out, &cp)
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Cron Store
// ──────────────────────────────────────────────────

// RegisterCron persists a new cron entry.
func (m *Store) RegisterCron(_ context.Context, entry *cron.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.crons {
		if existing.Name == entry.Name {
			return marketsync.ErrDuplicateCron
		}
	}
	cp := *entry
	m.crons[entry.ID.String()] = &cp
	return nil
}

// GetCron retrieves a cron entry by ID.
func (m *Store) GetCron(_ context.Context, entryID id.CronID) (*cron.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.crons[entryID.String()]
	if !ok {
		return nil, marketsync.ErrCronNotFound
	}
	cp := *entry
	return &cp, nil
}

// ListCrons returns all cron entries.
func (m *Store) ListCrons(_ context.Context) ([]*cron.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*cron.Entry, 0, len(m.crons))
	for _, entry := range m.crons {
		cp := *entry
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

// AcquireCronLock takes the per-entry lock if it is free or expired.
func (m *Store) AcquireCronLock(_ context.Context, entryID id.CronID, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.crons[entryID.String()]
	if !ok {
		return false, marketsync.ErrCronNotFound
	}

	now := time.Now().UTC()
	if entry.LockedBy != "" && entry.LockedUntil != nil && entry.LockedUntil.After(now) {
		return entry.LockedBy == workerID.String(), nil
	}

	until := now.Add(ttl)
	entry.LockedBy = workerID.String()
	entry.LockedUntil = &until
	return true, nil
}

// ReleaseCronLock frees the per-entry lock if workerID holds it.
func (m *Store) ReleaseCronLock(_ context.Context, entryID id.CronID, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.crons[entryID.String()]
	if !ok {
		return marketsync.ErrCronNotFound
	}
	if entry.LockedBy == workerID.String() {
		entry.LockedBy = ""
		entry.LockedUntil = nil
	}
	return nil
}

// UpdateCronLastRun records when a cron entry last fired.
func (m *Store) UpdateCronLastRun(_ context.Context, entryID id.CronID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.crons[entryID.String()]
	if !ok {
		return marketsync.ErrCronNotFound
	}
	entry.LastRunAt = &at
	entry.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateCronEntry updates a cron entry.
func (m *Store) UpdateCronEntry(_ context.Context, entry *cron.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.crons[entry.ID.String()]; !ok {
		return marketsync.ErrCronNotFound
	}
	cp := *entry
	cp.UpdatedAt = time.Now().UTC()
	m.crons[entry.ID.String()] = &cp
	return nil
}

// DeleteCron removes a cron entry by ID.
func (m *Store) DeleteCron(_ context.Context, entryID id.CronID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.crons[entryID.String()]; !ok {
		return marketsync.ErrCronNotFound
	}
	delete(m.crons, entryID.String())
	return nil
}

// ──────────────────────────────────────────────────
// DLQ Store
// ──────────────────────────────────────────────────

// PushDLQ adds a terminally failed job entry to the archive.
func (m *Store) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	m.dlqs[entry.ID.String()] = &cp
	return nil
}

// ListDLQ returns entries matching opts, oldest first.
func (m *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*dlq.Entry, 0, len(m.dlqs))
	for _, entry := range m.dlqs {
		if opts.JobType != "" && entry.JobType != opts.JobType {
			continue
		}
		matched = append(matched, entry)
	}

	sort.Slice(matched, func(a, b int) bool {
		return matched[a].FailedAt.Before(matched[b].FailedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[opts.Offset:]
		}
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	out := make([]*dlq.Entry, len(matched))
	for i, entry := range matched {
		cp := *entry
		out[i] = &cp
	}
	return out, nil
}

// GetDLQ retrieves an entry by ID.
func (m *Store) GetDLQ(_ context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.dlqs[entryID.String()]
	if !ok {
		return nil, marketsync.ErrDLQNotFound
	}
	cp := *entry
	return &cp, nil
}

// ReplayDLQ marks an entry as replayed.
func (m *Store) ReplayDLQ(_ context.Context, entryID id.DLQID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.dlqs[entryID.String()]
	if !ok {
		return marketsync.ErrDLQNotFound
	}
	now := time.Now().UTC()
	entry.ReplayedAt = &now
	return nil
}

// PurgeDLQ removes entries that failed before the given time.
func (m *Store) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key, entry := range m.dlqs {
		if entry.FailedAt.Before(before) {
			delete(m.dlqs, key)
			n++
		}
	}
	return n, nil
}

// CountDLQ returns the total number of entries in the archive.
func (m *Store) CountDLQ(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.dlqs)), nil
}

// ──────────────────────────────────────────────────
// Cluster Store — worker registry and named locks
// ──────────────────────────────────────────────────

// RegisterWorker adds a worker to the fleet registry.
func (m *Store) RegisterWorker(_ context.Context, w *cluster.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *w
	m.workers[w.ID.String()] = &cp
	return nil
}

// DeregisterWorker removes a worker from the fleet registry.
func (m *Store) DeregisterWorker(_ context.Context, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workers[workerID.String()]; !ok {
		return marketsync.ErrWorkerNotFound
	}
	delete(m.workers, workerID.String())
	return nil
}

// HeartbeatWorker updates the last-seen timestamp for a worker.
func (m *Store) HeartbeatWorker(_ context.Context, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[workerID.String()]
	if !ok {
		return marketsync.ErrWorkerNotFound
	}
	w.LastSeen = time.Now().UTC()
	return nil
}

// ListWorkers returns all registered workers.
func (m *Store) ListWorkers(_ context.Context) ([]*cluster.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*cluster.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		cp := *w
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID.String() < out[b].ID.String() })
	return out, nil
}

// ReapDeadWorkers returns workers whose last-seen timestamp is older
// than the threshold, marking them dead.
func (m *Store) ReapDeadWorkers(_ context.Context, threshold time.Duration) ([]*cluster.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-threshold)
	var dead []*cluster.Worker
	for _, w := range m.workers {
		if w.LastSeen.After(cutoff) || w.State == cluster.WorkerDead {
			continue
		}
		w.State = cluster.WorkerDead
		cp := *w
		dead = append(dead, &cp)
	}
	return dead, nil
}

// AcquireLock takes the named lock if it is free, expired, or already
// held by workerID.
func (m *Store) AcquireLock(_ context.Context, name string, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	l, ok := m.locks[name]
	if ok && !l.Expired(now) && l.HolderID.String() != workerID.String() {
		return false, nil
	}

	m.locks[name] = &cluster.Lock{
		Name:       name,
		HolderID:   workerID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	return true, nil
}

// RenewLock extends a lock the worker still holds.
func (m *Store) RenewLock(_ context.Context, name string, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	l, ok := m.locks[name]
	if !ok || l.Expired(now) || l.HolderID.String() != workerID.String() {
		return false, nil
	}
	l.ExpiresAt = now.Add(ttl)
	return true, nil
}

// ReleaseLock frees the named lock if workerID is the holder.
func (m *Store) ReleaseLock(_ context.Context, name string, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[name]
	if ok && l.HolderID.String() == workerID.String() {
		delete(m.locks, name)
	}
	return nil
}

// GetLock returns the current holder of the named lock, or nil when
// free or expired.
func (m *Store) GetLock(_ context.Context, name string) (*cluster.Lock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.locks[name]
	if !ok || l.Expired(time.Now().UTC()) {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}
