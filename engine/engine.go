// Package engine wires the marketsync subsystems together. It creates
// the extension registry, job registry, middleware chain, worker pool,
// cron scheduler, and ingestion orchestrator, and provides the typed
// Register/Enqueue surface applications build on.
//
// This package exists to break the import cycle: the root marketsync
// package defines Entity and the failure taxonomy (imported by job,
// ingest, etc.) and so cannot import those packages back. The engine
// package sits above all subsystem packages and below the application
// layer.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	marketsync "github.com/george-itf/amazon-listing-helper-sub000"
	"github.com/george-itf/amazon-listing-helper-sub000/backoff"
	"github.com/george-itf/amazon-listing-helper-sub000/cluster"
	"github.com/george-itf/amazon-listing-helper-sub000/cron"
	"github.com/george-itf/amazon-listing-helper-sub000/dlq"
	"github.com/george-itf/amazon-listing-helper-sub000/ext"
	"github.com/george-itf/amazon-listing-helper-sub000/id"
	"github.com/george-itf/amazon-listing-helper-sub000/ingest"
	"github.com/george-itf/amazon-listing-helper-sub000/job"
	mw "github.com/george-itf/amazon-listing-helper-sub000/middleware"
	"github.com/george-itf/amazon-listing-helper-sub000/observability"
	"github.com/george-itf/amazon-listing-helper-sub000/queue"
	"github.com/george-itf/amazon-listing-helper-sub000/ratelimit"
	"github.com/george-itf/amazon-listing-helper-sub000/store"
	"github.com/george-itf/amazon-listing-helper-sub000/worker"
)

// Engine is the assembled background-processing runtime: durable job
// queue, cron scheduling, and scheduled rate-limited ingestion, all
// over one aggregate store.
type Engine struct {
	cfg        marketsync.Config
	store      store.Store
	logger     *slog.Logger
	extensions *ext.Registry
	registry   *job.Registry
	dlqService *dlq.Service
	bo         backoff.Strategy
	mws        []mw.Middleware
	pool       *worker.Pool
	scheduler  *cron.Scheduler

	// Queue subsystem.
	queueConfigs []queue.Config
	queueManager *queue.Manager

	// Ingestion subsystem. The orchestrator is only built when a target
	// resolver and transformer are configured.
	rlConfigs    []ratelimit.Config
	limiter      *ratelimit.Manager
	resolver     ingest.TargetResolver
	fetchers     []ingest.SourceFetcher
	transformer  ingest.Transformer
	orchestrator *ingest.Orchestrator

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware appends middleware to the engine's default chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the retry backoff strategy for the engine.
// If not set, backoff.DefaultStrategy() (decorrelated jitter) is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithQueueConfig registers per-job-type rate limiting and concurrency
// configurations. Types not listed have no type-specific limits.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(eng *Engine) {
		eng.queueConfigs = append(eng.queueConfigs, configs...)
	}
}

// WithRateLimitConfig declares the steady-state rates for external
// endpoint classes used by source fetchers. Classes not listed get a
// permissive default bucket.
func WithRateLimitConfig(configs ...ratelimit.Config) Option {
	return func(eng *Engine) {
		eng.rlConfigs = append(eng.rlConfigs, configs...)
	}
}

// WithTargetResolver sets the resolver that freezes each ingestion
// cycle's target set.
func WithTargetResolver(r ingest.TargetResolver) Option {
	return func(eng *Engine) {
		eng.resolver = r
	}
}

// WithSourceFetchers adds external source fetchers to the ingestion
// pipeline.
func WithSourceFetchers(fetchers ...ingest.SourceFetcher) Option {
	return func(eng *Engine) {
		eng.fetchers = append(eng.fetchers, fetchers...)
	}
}

// WithTransformer sets the per-listing reconciliation transformer.
func WithTransformer(t ingest.Transformer) Option {
	return func(eng *Engine) {
		eng.transformer = t
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the
// global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, both the metrics middleware and the observability extension
// use this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

const instrumentationName = "github.com/george-itf/amazon-listing-helper-sub000"

// New assembles an Engine over the given store. The store carries all
// durable state; the engine owns only runtime wiring.
func New(cfg marketsync.Config, st store.Store, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, marketsync.ErrNoStore
	}
	if logger == nil {
		logger = slog.Default()
	}

	eng := &Engine{
		cfg:        cfg,
		store:      st,
		logger:     logger,
		extensions: ext.NewRegistry(logger),
		registry:   job.NewRegistry(),
	}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.bo == nil {
		eng.bo = backoff.DefaultStrategy()
	}

	eng.dlqService = dlq.NewService(st, st, logger)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the observability metrics extension.
	var (
		obsExt *observability.MetricsExtension
		obsErr error
	)
	if eng.meterProvider != nil {
		obsExt, obsErr = observability.NewMetricsExtensionWithMeter(eng.meterProvider.Meter(instrumentationName + "/observability"))
	} else {
		obsExt, obsErr = observability.NewMetricsExtension()
	}
	if obsErr != nil {
		return nil, fmt.Errorf("create metrics extension: %w", obsErr)
	}
	eng.extensions.Register(obsExt)

	// Default middleware stack: recover → tracing → metrics → logging → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Timeout(logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	executor := worker.NewExecutor(eng.registry, eng.extensions, st, eng.dlqService, eng.bo, logger, allMws...)

	poolOpts := []worker.PoolOption{
		worker.WithPoolConcurrency(cfg.Concurrency),
		worker.WithClaimBatchSize(cfg.ClaimBatchSize),
		worker.WithPollInterval(cfg.PollInterval),
		worker.WithHeartbeatInterval(cfg.HeartbeatInterval),
		worker.WithStaleJobThreshold(cfg.StaleJobThreshold),
	}
	if len(eng.queueConfigs) > 0 {
		eng.queueManager = queue.NewManager(eng.queueConfigs...)
		poolOpts = append(poolOpts, worker.WithQueueManager(eng.queueManager))
	}

	eng.pool = worker.NewPool(st, executor, eng.extensions, logger, poolOpts...)

	// Ingestion pipeline. The limiter always exists so fetchers added
	// later still find their buckets; the orchestrator requires the
	// resolver and transformer collaborators.
	eng.limiter = ratelimit.NewManager(eng.rlConfigs...)
	if eng.resolver != nil && eng.transformer != nil {
		reconciler := ingest.NewReconciler(st, st, eng.transformer, logger)
		eng.orchestrator = ingest.NewOrchestrator(
			st,
			eng.resolver,
			eng.fetchers,
			eng.limiter,
			st,
			eng.pool.WorkerID(),
			reconciler,
			logger,
			ingest.WithBatchSize(cfg.SourceBatchSize),
			ingest.WithFetchTimeout(cfg.FetchTimeout),
			ingest.WithLongOpTimeout(cfg.LongOpTimeout),
			ingest.WithLockTTL(cfg.CycleLockTTL),
			ingest.WithEmitter(eng.extensions),
		)
	}

	// The sync-cycle job type is owned by the engine: each firing runs
	// one ingestion cycle through the orchestrator.
	job.RegisterDefinition(eng.registry, job.NewDefinition(job.TypeSyncCycle, eng.runSyncCycle,
		job.WithTimeout(cfg.CycleLockTTL),
		job.WithMaxAttempts(1),
	))

	enqueueFunc := func(ctx context.Context, t job.Type, payload []byte, opts ...job.Option) (id.JobID, error) {
		j, err := eng.EnqueueRaw(ctx, t, payload, opts...)
		if err != nil {
			return id.JobID{}, err
		}
		return j.ID, nil
	}
	eng.scheduler = cron.NewScheduler(st, st, enqueueFunc, eng.extensions, eng.pool.WorkerID(), logger)

	return eng, nil
}

// syncCyclePayload is the (empty) payload for the engine-owned
// sync-cycle job type.
type syncCyclePayload struct{}

// syncCycleResult summarizes one cycle run onto the job row.
type syncCycleResult struct {
	CycleID   string `json:"cycle_id"`
	Status    string `json:"status"`
	Targets   int    `json:"targets"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

func (eng *Engine) runSyncCycle(ctx context.Context, _ syncCyclePayload) (any, error) {
	cycle, err := eng.TriggerCycle(ctx)
	if err != nil {
		return nil, err
	}
	return &syncCycleResult{
		CycleID:   cycle.ID.String(),
		Status:    string(cycle.Status),
		Targets:   cycle.TargetCount,
		Succeeded: cycle.Succeeded,
		Failed:    cycle.Failed,
	}, nil
}

// Register registers a typed job definition with the engine.
func Register[T any](eng *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(eng.registry, def)
}

// Enqueue creates and enqueues a job with a typed payload.
func Enqueue[T any](ctx context.Context, eng *Engine, t job.Type, payload T, opts ...job.Option) (*job.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for job type %q: %w", t, err)
	}
	return eng.EnqueueRaw(ctx, t, data, opts...)
}

// EnqueueRaw enqueues a job with a pre-serialized payload. The type
// must belong to the closed type set, and any registered enqueue-time
// precondition is re-validated here: publish-style jobs never trust a
// caller's precomputed decision.
func (eng *Engine) EnqueueRaw(ctx context.Context, t job.Type, payload []byte, opts ...job.Option) (*job.Job, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", marketsync.ErrUnknownJobType, t)
	}

	if err := eng.registry.Precheck(ctx, t, payload); err != nil {
		return nil, fmt.Errorf("precheck job type %q: %w", t, err)
	}

	// Per-type registered defaults, then caller options on top.
	jobOpts, ok := eng.registry.DefaultOptions(t)
	if !ok {
		jobOpts = job.DefaultOptions()
	}
	for _, opt := range opts {
		opt(&jobOpts)
	}

	now := time.Now().UTC()
	j := &job.Job{
		Entity:      marketsync.NewEntity(),
		ID:          id.NewJobID(),
		Type:        t,
		Scope:       jobOpts.Scope,
		Payload:     payload,
		State:       job.StatePending,
		Priority:    jobOpts.Priority,
		MaxAttempts: jobOpts.MaxAttempts,
		DedupKey:    jobOpts.DedupKey,
		Timeout:     jobOpts.Timeout,
		RunAt:       now,
	}
	if !jobOpts.RunAt.IsZero() {
		j.RunAt = jobOpts.RunAt
	}

	if err := eng.store.EnqueueJob(ctx, j); err != nil {
		return nil, err
	}

	eng.extensions.EmitJobEnqueued(ctx, j)
	return j, nil
}

// GetJob retrieves a job by ID.
func (eng *Engine) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return eng.store.GetJob(ctx, jobID)
}

// ListJobs returns jobs matching the given options.
func (eng *Engine) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	return eng.store.ListJobs(ctx, opts)
}

// CountJobs returns the number of jobs matching the given options.
func (eng *Engine) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	return eng.store.CountJobs(ctx, opts)
}

// CancelJob cancels a job. The store transition prevents any future
// claim or retry; if the job is running on this instance the handler's
// context is additionally cancelled as a cooperative signal. Returns
// false when the job was already terminal.
func (eng *Engine) CancelJob(ctx context.Context, jobID id.JobID) (bool, error) {
	cancelled, err := eng.store.CancelJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	if cancelled {
		eng.pool.CancelActive(jobID)
	}
	return cancelled, nil
}

// TriggerCycle runs one ingestion cycle immediately, outside the
// schedule. If another cycle holds the single-flight lock anywhere in
// the fleet, the returned cycle has status skipped.
func (eng *Engine) TriggerCycle(ctx context.Context) (*ingest.Cycle, error) {
	if eng.orchestrator == nil {
		return nil, fmt.Errorf("marketsync: ingestion not configured: target resolver and transformer required")
	}
	return eng.orchestrator.RunCycle(ctx)
}

// RegisterCron registers a typed cron definition with the engine.
// It validates the schedule expression, computes the initial NextRunAt,
// and persists the entry. Re-registration of the same name is idempotent.
func RegisterCron[T any](ctx context.Context, eng *Engine, def *cron.Definition[T]) error {
	sched, err := cron.ParseSchedule(def.Schedule)
	if err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", def.Schedule, err)
	}

	if !def.JobType.Valid() {
		return fmt.Errorf("%w: %q", marketsync.ErrUnknownJobType, def.JobType)
	}

	payload, err := json.Marshal(def.Payload)
	if err != nil {
		return fmt.Errorf("marshal cron payload: %w", err)
	}

	now := time.Now().UTC()
	next := sched.Next(now)

	entry := &cron.Entry{
		Entity:    marketsync.NewEntity(),
		ID:        id.NewCronID(),
		Name:      def.Name,
		Schedule:  def.Schedule,
		JobType:   def.JobType,
		Payload:   payload,
		NextRunAt: &next,
		Enabled:   true,
	}

	if err := eng.store.RegisterCron(ctx, entry); err != nil {
		if errors.Is(err, marketsync.ErrDuplicateCron) {
			return nil
		}
		return fmt.Errorf("register cron %q: %w", def.Name, err)
	}

	eng.logger.Info("cron registered",
		slog.String("name", def.Name),
		slog.String("schedule", def.Schedule),
		slog.String("job_type", string(def.JobType)),
		slog.Time("next_run_at", next),
	)
	return nil
}

// Start validates handler coverage for the closed job type set, joins
// the fleet, and launches the cron scheduler and worker pool. A missing
// handler is a boot failure, not a runtime surprise.
func (eng *Engine) Start(ctx context.Context) error {
	if err := eng.registry.ValidateCoverage(); err != nil {
		return err
	}

	hostname, hostnameErr := os.Hostname()
	if hostnameErr != nil {
		hostname = "unknown"
	}
	now := time.Now().UTC()
	w := &cluster.Worker{
		ID:          eng.pool.WorkerID(),
		Hostname:    hostname,
		Concurrency: eng.cfg.Concurrency,
		State:       cluster.WorkerActive,
		LastSeen:    now,
		CreatedAt:   now,
	}
	if regErr := eng.store.RegisterWorker(ctx, w); regErr != nil {
		eng.logger.Warn("register worker in fleet error", slog.String("error", regErr.Error()))
	}

	// The ingestion schedule is a cron entry like any other: every
	// IngestInterval a sync-cycle job is enqueued, and the cycle's
	// single-flight lock keeps overlapping fires harmless.
	if eng.orchestrator != nil && eng.cfg.IngestInterval > 0 {
		def := &cron.Definition[syncCyclePayload]{
			Name:     "ingest-sync-cycle",
			Schedule: fmt.Sprintf("@every %s", eng.cfg.IngestInterval),
			JobType:  job.TypeSyncCycle,
		}
		if err := RegisterCron(ctx, eng, def); err != nil {
			return fmt.Errorf("register ingestion schedule: %w", err)
		}
	}

	// Scheduler first so lock acquisition starts before jobs flow.
	if err := eng.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start cron scheduler: %w", err)
	}
	return eng.pool.Start(ctx)
}

// Stop gracefully shuts down the engine: the worker pool drains within
// the configured shutdown timeout, the scheduler releases its lock, the
// worker leaves the fleet registry, and extensions get the shutdown
// notification last.
func (eng *Engine) Stop(ctx context.Context) error {
	stopCtx := ctx
	if eng.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		stopCtx, cancel = context.WithTimeout(ctx, eng.cfg.ShutdownTimeout)
		defer cancel()
	}

	if err := eng.scheduler.Stop(stopCtx); err != nil {
		eng.logger.Error("cron scheduler stop error", slog.String("error", err.Error()))
	}

	poolErr := eng.pool.Stop(stopCtx)

	if err := eng.store.DeregisterWorker(ctx, eng.pool.WorkerID()); err != nil {
		eng.logger.Warn("deregister worker error", slog.String("error", err.Error()))
	}

	eng.extensions.EmitShutdown(ctx)
	return poolErr
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Store returns the aggregate store the engine was built over.
func (eng *Engine) Store() store.Store { return eng.store }

// DLQService returns the engine's DLQ service for replay and inspection.
func (eng *Engine) DLQService() *dlq.Service { return eng.dlqService }

// Scheduler returns the cron scheduler.
func (eng *Engine) Scheduler() *cron.Scheduler { return eng.scheduler }

// QueueManager returns the queue manager, or nil if no queue configs
// were provided.
func (eng *Engine) QueueManager() *queue.Manager { return eng.queueManager }

// RateLimits returns the per-endpoint-class rate limit manager.
func (eng *Engine) RateLimits() *ratelimit.Manager { return eng.limiter }

// WorkerID returns this instance's fleet identity.
func (eng *Engine) WorkerID() id.WorkerID { return eng.pool.WorkerID() }
