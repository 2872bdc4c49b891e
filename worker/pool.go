package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/george-itf/amazon-listing-helper-sub000/ext"
	"github.com/george-itf/amazon-listing-helper-sub000/id"
	"github.com/george-itf/amazon-listing-helper-sub000/job"
)

// QueueManager controls per-type and per-marketplace rate limiting and
// concurrency. The worker pool calls Acquire before claiming a listed
// job and Release after execution completes.
type QueueManager interface {
	// Acquire checks rate limits and concurrency for the type and
	// marketplace. Returns true if the job is allowed to proceed.
	Acquire(t job.Type, marketplaceID string) bool
	// Release decrements the active count for the type/marketplace pair.
	Release(t job.Type, marketplaceID string)
}

// Pool manages a set of concurrent worker goroutines that poll for due
// jobs, claim them exclusively, and execute them through the Executor.
type Pool struct {
	store          job.Store
	executor       *Executor
	extensions     *ext.Registry
	concurrency    int
	claimBatchSize int
	pollInterval   time.Duration
	workerID       id.WorkerID
	logger         *slog.Logger

	// Heartbeat / reaper configuration.
	heartbeatInterval time.Duration
	staleJobThreshold time.Duration

	// Queue manager (optional).
	queueManager QueueManager

	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	activeJobs map[string]context.CancelFunc
	activeMu   sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPollInterval sets how often workers poll for new jobs.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithClaimBatchSize sets how many due jobs one poll fetches before
// attempting to claim them individually.
func WithClaimBatchSize(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.claimBatchSize = n
		}
	}
}

// WithHeartbeatInterval sets how often the pool sends heartbeats for
// active jobs. A zero value disables heartbeats.
func WithHeartbeatInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.heartbeatInterval = d }
}

// WithStaleJobThreshold sets the threshold after which running jobs
// without a heartbeat are considered orphaned and reset to pending.
// A zero value disables reaping.
func WithStaleJobThreshold(d time.Duration) PoolOption {
	return func(p *Pool) { p.staleJobThreshold = d }
}

// WithQueueManager sets the queue manager for rate limiting and
// concurrency control.
func WithQueueManager(m QueueManager) PoolOption {
	return func(p *Pool) { p.queueManager = m }
}

// WithWorkerID sets the pool's worker identity. Defaults to a fresh ID.
func WithWorkerID(workerID id.WorkerID) PoolOption {
	return func(p *Pool) { p.workerID = workerID }
}

// NewPool creates a worker pool.
func NewPool(
	store job.Store,
	executor *Executor,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	p := &Pool{
		store:          store,
		executor:       executor,
		extensions:     extensions,
		concurrency:    10,
		claimBatchSize: 1,
		pollInterval:   time.Second,
		workerID:       id.NewWorkerID(),
		logger:         logger,
		stopCh:         make(chan struct{}),
		activeJobs:     make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.pollLoop()
	}

	if p.heartbeatInterval > 0 {
		p.wg.Add(1)
		go p.heartbeatLoop()
	}

	if p.staleJobThreshold > 0 {
		p.wg.Add(1)
		go p.reaperLoop()
	}

	return nil
}

// Stop signals all workers to stop and waits for in-flight jobs to
// finish. If the context has a deadline, jobs still running past it are
// cancelled and left for the reaper to hand to a future worker.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))

	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs")
		p.cancelActiveJobs()
		p.wg.Wait()
	}

	return nil
}

// CancelActive cancels the execution context of a job running on this
// pool. Returns false if the job is not active locally. The store-side
// cancellation is separate; this only delivers the cooperative signal.
func (p *Pool) CancelActive(jobID id.JobID) bool {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()

	cancel, ok := p.activeJobs[jobID.String()]
	if !ok {
		return false
	}
	cancel()
	return true
}

// pollLoop is run by each worker goroutine: list due jobs, claim one,
// execute it. Claiming is the arbiter — a listed job another worker
// claimed first simply yields nil and the loop moves on.
func (p *Pool) pollLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		jobs, err := p.store.ListPending(context.Background(), p.claimBatchSize)
		if err != nil {
			p.logger.Error("list pending error", slog.String("error", err.Error()))
			p.sleep()
			continue
		}

		if len(jobs) == 0 {
			p.sleep()
			continue
		}

		if !p.tryBatch(jobs) {
			p.sleep()
		}
	}
}

// tryBatch walks a listed batch in order and executes the first job this
// worker wins the claim for. Returns false when nothing in the batch was
// runnable (throttled or lost every claim).
func (p *Pool) tryBatch(jobs []*job.Job) bool {
	for _, candidate := range jobs {
		// Check type/marketplace rate limit and concurrency before
		// claiming, so a throttled job stays claimable by other pools.
		if p.queueManager != nil && !p.queueManager.Acquire(candidate.Type, candidate.Scope.MarketplaceID) {
			continue
		}

		claimed, err := p.store.ClaimJob(context.Background(), candidate.ID, p.workerID)
		if err != nil {
			p.releaseSlot(candidate)
			p.logger.Error("claim error",
				slog.String("job_id", candidate.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if claimed == nil {
			// Another worker won the claim.
			p.releaseSlot(candidate)
			continue
		}

		p.runJob(claimed)
		p.releaseSlot(claimed)
		return true
	}
	return false
}

func (p *Pool) runJob(j *job.Job) {
	p.extensions.EmitJobStarted(context.Background(), j)

	ctx, cancel := context.WithCancel(context.Background())
	p.trackJob(j.ID.String(), cancel)
	defer func() {
		p.untrackJob(j.ID.String())
		cancel()
	}()

	if execErr := p.executor.Execute(ctx, j); execErr != nil {
		p.logger.Debug("job execution failed",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", string(j.Type)),
			slog.String("error", execErr.Error()),
		)
	}
}

func (p *Pool) releaseSlot(j *job.Job) {
	if p.queueManager != nil {
		p.queueManager.Release(j.Type, j.Scope.MarketplaceID)
	}
}

// heartbeatLoop periodically sends heartbeats for all active jobs so
// the reaper on other instances knows this process is alive.
func (p *Pool) heartbeatLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.sendHeartbeats()
		}
	}
}

func (p *Pool) sendHeartbeats() {
	p.activeMu.Lock()
	jobIDs := make([]string, 0, len(p.activeJobs))
	for jobID := range p.activeJobs {
		jobIDs = append(jobIDs, jobID)
	}
	p.activeMu.Unlock()

	for _, jobIDStr := range jobIDs {
		parsedID, parseErr := id.ParseJobID(jobIDStr)
		if parseErr != nil {
			p.logger.Warn("heartbeat: invalid job id", slog.String("job_id", jobIDStr))
			continue
		}
		if err := p.store.HeartbeatJob(context.Background(), parsedID, p.workerID); err != nil {
			p.logger.Warn("heartbeat failed",
				slog.String("job_id", jobIDStr),
				slog.String("error", err.Error()),
			)
		}
	}
}

// reaperLoop periodically resets running jobs whose heartbeat expired,
// making jobs orphaned by a dead process claimable again.
func (p *Pool) reaperLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.staleJobThreshold)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.reapStaleJobs()
		}
	}
}

func (p *Pool) reapStaleJobs() {
	reaped, err := p.store.ReapStaleJobs(context.Background(), p.staleJobThreshold)
	if err != nil {
		p.logger.Error("reap stale jobs error", slog.String("error", err.Error()))
		return
	}

	for _, j := range reaped {
		p.logger.Info("reaped stale job",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", string(j.Type)),
			slog.Int("attempts", j.Attempts),
		)
	}
}

func (p *Pool) sleep() {
	select {
	case <-time.After(p.pollInterval):
	case <-p.stopCh:
	}
}

func (p *Pool) trackJob(jobID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeJobs[jobID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackJob(jobID string) {
	p.activeMu.Lock()
	delete(p.activeJobs, jobID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveJobs() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for jobID, cancel := range p.activeJobs {
		p.logger.Warn("cancelling active job", slog.String("job_id", jobID))
		cancel()
	}
}
