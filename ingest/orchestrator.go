package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	marketsync "github.com/george-itf/amazon-listing-helper-sub000"
	"github.com/george-itf/amazon-listing-helper-sub000/cluster"
	"github.com/george-itf/amazon-listing-helper-sub000/id"
	"github.com/george-itf/amazon-listing-helper-sub000/ratelimit"
)

// cycleLockName is the fleet-wide named lock that keeps ingestion
// cycles single-flight.
const cycleLockName = "ingest-cycle"

// Emitter emits cycle lifecycle events. ext.Registry satisfies this
// interface.
type Emitter interface {
	EmitCycleStarted(ctx context.Context, cycleID id.CycleID, targetCount int)
	EmitCycleCompleted(ctx context.Context, cycleID id.CycleID, status string, succeeded, failed int, elapsed time.Duration)
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithBatchSize sets how many listings one FetchBatch call covers.
func WithBatchSize(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.batchSize = n }
}

// WithFetchTimeout bounds each FetchBatch call independently of the
// job-level timeout.
func WithFetchTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.fetchTimeout = d }
}

// WithLongOpTimeout sets the ceiling for fetchers that implement
// LongOperation. Report-style sources generate-then-poll and routinely
// outlive the ordinary fetch timeout.
func WithLongOpTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.longOpTimeout = d }
}

// WithLockTTL sets the TTL on the single-flight cycle lock. It should
// comfortably exceed the longest expected cycle.
func WithLockTTL(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.lockTTL = d }
}

// WithEmitter attaches a lifecycle event emitter.
func WithEmitter(e Emitter) OrchestratorOption {
	return func(o *Orchestrator) { o.emitter = e }
}

// Orchestrator runs ingestion cycles: freeze targets, fetch from every
// source through rate limits, persist raw payloads, reconcile.
type Orchestrator struct {
	store      Store
	resolver   TargetResolver
	fetchers   []SourceFetcher
	limiter    *ratelimit.Manager
	locks      cluster.Store
	workerID   id.WorkerID
	reconciler *Reconciler
	emitter    Emitter
	logger     *slog.Logger

	batchSize     int
	fetchTimeout  time.Duration
	longOpTimeout time.Duration
	lockTTL       time.Duration
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	store Store,
	resolver TargetResolver,
	fetchers []SourceFetcher,
	limiter *ratelimit.Manager,
	locks cluster.Store,
	workerID id.WorkerID,
	reconciler *Reconciler,
	logger *slog.Logger,
	opts ...OrchestratorOption,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		store:        store,
		resolver:     resolver,
		fetchers:     fetchers,
		limiter:      limiter,
		locks:        locks,
		workerID:     workerID,
		reconciler:   reconciler,
		logger:       logger,
		batchSize:     20,
		fetchTimeout:  30 * time.Second,
		longOpTimeout: 15 * time.Minute,
		lockTTL:       10 * time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunCycle executes one ingestion cycle end to end. If another cycle
// already holds the single-flight lock anywhere in the fleet, a cycle
// record with status skipped is returned immediately; RunCycle never
// queues or blocks waiting for the lock.
func (o *Orchestrator) RunCycle(ctx context.Context) (*Cycle, error) {
	// The lock backends let a holder re-acquire its own lock, so the
	// stable worker identity cannot arbitrate two invocations on the
	// same instance (a manual trigger racing the scheduled cycle).
	// Each invocation holds the lock under its own token instead.
	holder := id.NewWorkerID()
	acquired, err := o.locks.AcquireLock(ctx, cycleLockName, holder, o.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire cycle lock: %w", err)
	}

	start := time.Now().UTC()
	cycle := &Cycle{
		Entity:    marketsync.NewEntity(),
		ID:        id.NewCycleID(),
		Strategy:  StrategyFullRefresh,
		StartedAt: start,
	}

	if !acquired {
		cycle.Status = CycleSkipped
		o.finishCycle(ctx, cycle, start, false)
		return cycle, nil
	}
	defer func() {
		if relErr := o.locks.ReleaseLock(context.WithoutCancel(ctx), cycleLockName, holder); relErr != nil {
			o.logger.Warn("release cycle lock error", slog.String("error", relErr.Error()))
		}
	}()

	// Freeze the target set for the whole cycle.
	targets, err := o.resolver.ResolveTargets(ctx)
	if err != nil {
		cycle.Status = CycleFailed
		cycle.Error = fmt.Sprintf("resolve targets: %v", err)
		o.finishCycle(ctx, cycle, start, false)
		return cycle, fmt.Errorf("resolve targets: %w", err)
	}
	cycle.TargetCount = len(targets)
	cycle.Status = CycleRunning

	if err := o.store.CreateCycle(ctx, cycle); err != nil {
		return nil, fmt.Errorf("create cycle record: %w", err)
	}
	if o.emitter != nil {
		o.emitter.EmitCycleStarted(ctx, cycle.ID, cycle.TargetCount)
	}
	o.logger.Info("ingestion cycle started",
		slog.String("cycle_id", cycle.ID.String()),
		slog.String("worker_id", o.workerID.String()),
		slog.Int("targets", cycle.TargetCount),
	)

	o.fetchAllSources(ctx, cycle.ID, targets)

	counts, err := o.reconciler.Reconcile(ctx, cycle.ID, targets)
	if err != nil {
		cycle.Status = CycleFailed
		cycle.Error = err.Error()
		o.finishCycle(ctx, cycle, start, true)
		return cycle, err
	}

	cycle.Succeeded = counts.Succeeded
	cycle.Failed = counts.Failed
	if counts.Failed == 0 {
		cycle.Status = CycleSucceeded
	} else {
		cycle.Status = CyclePartial
	}
	o.finishCycle(ctx, cycle, start, true)

	o.logger.Info("ingestion cycle completed",
		slog.String("cycle_id", cycle.ID.String()),
		slog.String("status", string(cycle.Status)),
		slog.Int("succeeded", cycle.Succeeded),
		slog.Int("failed", cycle.Failed),
		slog.Int("missing", len(counts.Missing)),
		slog.Duration("duration", cycle.Duration),
	)
	return cycle, nil
}

// finishCycle stamps the terminal fields and persists the cycle.
// update is false when the record was never created (skipped or failed
// before CreateCycle), in which case it is created terminal.
func (o *Orchestrator) finishCycle(ctx context.Context, cycle *Cycle, start time.Time, update bool) {
	now := time.Now().UTC()
	cycle.CompletedAt = &now
	cycle.Duration = now.Sub(start)

	var err error
	if update {
		err = o.store.UpdateCycle(ctx, cycle)
	} else {
		err = o.store.CreateCycle(ctx, cycle)
	}
	if err != nil {
		o.logger.Error("persist cycle record error",
			slog.String("cycle_id", cycle.ID.String()),
			slog.String("status", string(cycle.Status)),
			slog.String("error", err.Error()),
		)
	}

	if o.emitter != nil && cycle.Status != CycleSkipped {
		o.emitter.EmitCycleCompleted(ctx, cycle.ID, string(cycle.Status), cycle.Succeeded, cycle.Failed, cycle.Duration)
	}
}

// fetchAllSources runs every configured fetcher concurrently. Failures
// are isolated per batch: a failing batch is logged and skipped, other
// batches and other sources continue.
func (o *Orchestrator) fetchAllSources(ctx context.Context, cycleID id.CycleID, targets []Target) {
	ids := make([]string, len(targets))
	for i, t := range targets {
		ids[i] = t.EntityID
	}
	kinds := make(map[string]string, len(targets))
	marketplaces := make(map[string]string, len(targets))
	for _, t := range targets {
		kinds[t.EntityID] = t.EntityKind
		marketplaces[t.EntityID] = t.MarketplaceID
	}

	var wg sync.WaitGroup
	for _, fetcher := range o.fetchers {
		wg.Add(1)
		go func(f SourceFetcher) {
			defer wg.Done()
			o.fetchSource(ctx, f, cycleID, ids, kinds, marketplaces)
		}(fetcher)
	}
	wg.Wait()
}

// fetchSource pulls every batch for one source, gated by that source's
// rate-limit bucket, and persists the documents that come back.
func (o *Orchestrator) fetchSource(ctx context.Context, f SourceFetcher, cycleID id.CycleID, ids []string, kinds, marketplaces map[string]string) {
	bucket := o.limiter.Bucket(f.EndpointClass())

	for offset := 0; offset < len(ids); offset += o.batchSize {
		end := min(offset+o.batchSize, len(ids))
		batch := ids[offset:end]

		docs, err := o.fetchBatch(ctx, f, bucket, batch)
		if err != nil {
			o.logger.Error("source batch fetch error",
				slog.String("cycle_id", cycleID.String()),
				slog.String("source", f.Name()),
				slog.Int("batch_start", offset),
				slog.Int("batch_size", len(batch)),
				slog.String("error", err.Error()),
			)
			continue
		}

		capturedAt := time.Now().UTC()
		for entityID, doc := range docs {
			p := &RawPayload{
				ID:            id.NewPayloadID(),
				CycleID:       cycleID,
				EntityKind:    kinds[entityID],
				EntityID:      entityID,
				MarketplaceID: marketplaces[entityID],
				Source:        f.Name(),
				Document:      doc,
				CapturedAt:    capturedAt,
			}
			if putErr := o.store.PutRawPayload(ctx, p); putErr != nil {
				o.logger.Error("persist raw payload error",
					slog.String("cycle_id", cycleID.String()),
					slog.String("source", f.Name()),
					slog.String("entity_id", entityID),
					slog.String("error", putErr.Error()),
				)
			}
		}
	}
}

// fetchBatch executes one rate-limited FetchBatch call with bounded
// inline retries on explicit throttle responses.
func (o *Orchestrator) fetchBatch(ctx context.Context, f SourceFetcher, bucket *ratelimit.Bucket, batch []string) (map[string][]byte, error) {
	needed := float64(len(batch))
	timeout := o.fetchTimeout
	if lo, ok := f.(LongOperation); ok && lo.LongOperation() {
		timeout = o.longOpTimeout
	}

	for attempt := 1; ; attempt++ {
		if err := bucket.WaitForTokens(ctx, needed); err != nil {
			return nil, err
		}

		fetchCtx, cancel := context.WithTimeout(ctx, timeout)
		docs, err := f.FetchBatch(fetchCtx, batch)
		cancel()
		if err == nil {
			return docs, nil
		}

		var rle *marketsync.RateLimitError
		if !errors.As(err, &rle) {
			return nil, err
		}

		decision := bucket.HandleRateLimitError(attempt, rle.RetryAfter, rle.Remaining, needed)
		if !decision.ShouldRetry {
			return nil, err
		}
		o.logger.Warn("source throttled, backing off",
			slog.String("source", f.Name()),
			slog.Int("attempt", attempt),
			slog.Duration("wait", decision.Wait),
		)
		timer := time.NewTimer(decision.Wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
