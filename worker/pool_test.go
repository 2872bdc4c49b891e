package worker_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	marketsync "github.com/george-itf/amazon-listing-helper-sub000"
	"github.com/george-itf/amazon-listing-helper-sub000/backoff"
	"github.com/george-itf/amazon-listing-helper-sub000/dlq"
	"github.com/george-itf/amazon-listing-helper-sub000/ext"
	"github.com/george-itf/amazon-listing-helper-sub000/id"
	"github.com/george-itf/amazon-listing-helper-sub000/job"
	"github.com/george-itf/amazon-listing-helper-sub000/middleware"
	"github.com/george-itf/amazon-listing-helper-sub000/store/memory"
	"github.com/george-itf/amazon-listing-helper-sub000/worker"
)

type fixture struct {
	store    *memory.Store
	registry *job.Registry
	executor *worker.Executor
	workerID id.WorkerID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.Default()
	s := memory.New()
	registry := job.NewRegistry()
	dlqSvc := dlq.NewService(s, s, logger)
	executor := worker.NewExecutor(
		registry, ext.NewRegistry(logger), s, dlqSvc,
		backoff.NewConstant(time.Millisecond), logger,
		middleware.Recover(logger),
		middleware.Timeout(logger),
	)
	return &fixture{store: s, registry: registry, executor: executor, workerID: id.NewWorkerID()}
}

func (f *fixture) register(t job.Type, handler func(ctx context.Context) (any, error)) {
	job.RegisterDefinition(f.registry, &job.Definition[map[string]any]{
		Type: t,
		Handler: func(ctx context.Context, _ map[string]any) (any, error) {
			return handler(ctx)
		},
	})
}

func (f *fixture) enqueue(t *testing.T, jobType job.Type, maxAttempts int) *job.Job {
	t.Helper()
	j := &job.Job{
		Entity:      marketsync.NewEntity(),
		ID:          id.NewJobID(),
		Type:        jobType,
		Scope:       job.Scope{EntityKind: "listing", EntityID: "B00TEST01"},
		State:       job.StatePending,
		MaxAttempts: maxAttempts,
		RunAt:       time.Now().UTC(),
	}
	if err := f.store.EnqueueJob(context.Background(), j); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return j
}

// claimAndExecute drives one attempt the way the pool does: claim, then
// hand the claimed copy to the executor.
func (f *fixture) claimAndExecute(t *testing.T, jobID id.JobID) {
	t.Helper()
	claimed, err := f.store.ClaimJob(context.Background(), jobID, f.workerID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil {
		t.Fatal("claim lost unexpectedly")
	}
	_ = f.executor.Execute(context.Background(), claimed)
}

func TestExecutor_SuccessOnThirdAttempt(t *testing.T) {
	f := newFixture(t)

	var calls atomic.Int32
	f.register(job.TypePublishPrice, func(context.Context) (any, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("marketplace returned 503")
		}
		return map[string]string{"status": "published"}, nil
	})

	j := f.enqueue(t, job.TypePublishPrice, 3)
	for range 3 {
		f.claimAndExecute(t, j.ID)
	}

	got, err := f.store.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != job.StateSucceeded {
		t.Errorf("state = %s, want succeeded", got.State)
	}
	if got.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", got.Attempts)
	}
	if len(got.Result) == 0 {
		t.Error("succeeded job should carry the handler result")
	}

	n, _ := f.store.CountDLQ(context.Background())
	if n != 0 {
		t.Errorf("dlq entries = %d, want 0", n)
	}
}

func TestExecutor_RetryBoundAndDLQ(t *testing.T) {
	f := newFixture(t)

	var calls atomic.Int32
	f.register(job.TypeGenerateContent, func(context.Context) (any, error) {
		calls.Add(1)
		return nil, errors.New("content model unavailable")
	})

	j := f.enqueue(t, job.TypeGenerateContent, 3)
	for range 3 {
		f.claimAndExecute(t, j.ID)
	}

	if got := calls.Load(); got != 3 {
		t.Errorf("handler executed %d times, want exactly 3", got)
	}

	got, _ := f.store.GetJob(context.Background(), j.ID)
	if got.State != job.StateFailed {
		t.Errorf("state = %s, want failed", got.State)
	}
	if got.Attempts != got.MaxAttempts {
		t.Errorf("attempts = %d, want %d", got.Attempts, got.MaxAttempts)
	}
	if got.LastError == nil || got.LastError.Code != marketsync.CodeExternalAPI {
		t.Errorf("last error = %+v, want EXTERNAL_API failure", got.LastError)
	}

	entries, err := f.store.ListDLQ(context.Background(), dlq.ListOpts{})
	if err != nil {
		t.Fatalf("list dlq: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("dlq entries = %d, want exactly 1", len(entries))
	}
	if entries[0].JobID.String() != j.ID.String() {
		t.Errorf("dlq entry for job %s, want %s", entries[0].JobID, j.ID)
	}
	if entries[0].Attempts != 3 {
		t.Errorf("dlq entry attempts = %d, want 3", entries[0].Attempts)
	}
}

func TestExecutor_UnknownTypeFailsTerminallyAtOnce(t *testing.T) {
	f := newFixture(t)
	// Nothing registered.

	j := f.enqueue(t, job.TypeComplianceScan, 5)
	f.claimAndExecute(t, j.ID)

	got, _ := f.store.GetJob(context.Background(), j.ID)
	if got.State != job.StateFailed {
		t.Fatalf("state = %s, want failed on the first attempt", got.State)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}
	if got.LastError == nil || got.LastError.Code != marketsync.CodeUnknownJobType {
		t.Errorf("last error = %+v, want UNKNOWN_JOB_TYPE", got.LastError)
	}

	n, _ := f.store.CountDLQ(context.Background())
	if n != 1 {
		t.Errorf("dlq entries = %d, want 1", n)
	}
}

func TestExecutor_TimeoutClassification(t *testing.T) {
	f := newFixture(t)

	f.register(job.TypeSyncCycle, func(context.Context) (any, error) {
		// Ignores its context entirely; the timeout middleware must
		// still bound the attempt.
		time.Sleep(5 * time.Second)
		return nil, nil
	})

	j := f.enqueue(t, job.TypeSyncCycle, 1)
	claimed, err := f.store.ClaimJob(context.Background(), j.ID, f.workerID)
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v %v", claimed, err)
	}
	claimed.Timeout = 30 * time.Millisecond

	start := time.Now()
	_ = f.executor.Execute(context.Background(), claimed)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("execute took %v with a 30ms ceiling", elapsed)
	}

	got, _ := f.store.GetJob(context.Background(), j.ID)
	if got.State != job.StateFailed {
		t.Errorf("state = %s, want failed (attempt must not stay running)", got.State)
	}
	if got.LastError == nil || got.LastError.Code != marketsync.CodeTimeout {
		t.Errorf("last error = %+v, want the distinct TIMEOUT code", got.LastError)
	}
}

func TestExecutor_PanicIsContained(t *testing.T) {
	f := newFixture(t)

	f.register(job.TypeRecomputeEconomics, func(context.Context) (any, error) {
		panic("nil margin")
	})

	j := f.enqueue(t, job.TypeRecomputeEconomics, 1)
	f.claimAndExecute(t, j.ID)

	got, _ := f.store.GetJob(context.Background(), j.ID)
	if got.State != job.StateFailed {
		t.Errorf("state = %s, want failed", got.State)
	}
	if got.LastError == nil || got.LastError.Code != marketsync.CodePanic {
		t.Errorf("last error = %+v, want PANIC", got.LastError)
	}
	if got.LastError != nil && got.LastError.Stack == "" {
		t.Error("panic failure should capture a stack trace")
	}
}

func TestExecutor_PartialOutcome(t *testing.T) {
	f := newFixture(t)

	f.register(job.TypeComplianceScan, func(context.Context) (any, error) {
		return nil, fmt.Errorf("3 of 5 listings scanned: %w", marketsync.ErrPartialSuccess)
	})

	j := f.enqueue(t, job.TypeComplianceScan, 3)
	f.claimAndExecute(t, j.ID)

	got, _ := f.store.GetJob(context.Background(), j.ID)
	if got.State != job.StatePartial {
		t.Errorf("state = %s, want partial", got.State)
	}
	n, _ := f.store.CountDLQ(context.Background())
	if n != 0 {
		t.Errorf("dlq entries = %d, want 0 for a partial outcome", n)
	}
}

func TestPool_DrainsJobsAndStops(t *testing.T) {
	f := newFixture(t)

	var done atomic.Int32
	f.register(job.TypePublishPrice, func(context.Context) (any, error) {
		done.Add(1)
		return nil, nil
	})

	for i := range 5 {
		j := &job.Job{
			Entity:      marketsync.NewEntity(),
			ID:          id.NewJobID(),
			Type:        job.TypePublishPrice,
			Scope:       job.Scope{EntityKind: "listing", EntityID: fmt.Sprintf("B00TEST%02d", i)},
			State:       job.StatePending,
			MaxAttempts: 3,
			RunAt:       time.Now().UTC(),
		}
		if err := f.store.EnqueueJob(context.Background(), j); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	pool := worker.NewPool(f.store, f.executor, ext.NewRegistry(slog.Default()), slog.Default(),
		worker.WithPoolConcurrency(3),
		worker.WithPollInterval(5*time.Millisecond),
	)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for done.Load() < 5 {
		select {
		case <-deadline:
			t.Fatalf("pool drained %d/5 jobs before the deadline", done.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := pool.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	n, _ := f.store.CountJobs(context.Background(), job.CountOpts{State: job.StateSucceeded})
	if n != 5 {
		t.Errorf("succeeded = %d, want 5", n)
	}
}

func TestPool_CancelActiveDeliversCooperativeSignal(t *testing.T) {
	f := newFixture(t)

	started := make(chan struct{})
	observed := make(chan error, 1)
	f.register(job.TypeGenerateContent, func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		observed <- ctx.Err()
		return nil, ctx.Err()
	})

	j := f.enqueue(t, job.TypeGenerateContent, 1)

	pool := worker.NewPool(f.store, f.executor, ext.NewRegistry(slog.Default()), slog.Default(),
		worker.WithPoolConcurrency(1),
		worker.WithPollInterval(5*time.Millisecond),
	)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = pool.Stop(stopCtx)
	}()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("handler never started")
	}

	// Store-side cancel first so the terminal state is already set, then
	// the local cooperative signal so the handler can observe it.
	if _, err := f.store.CancelJob(context.Background(), j.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !pool.CancelActive(j.ID) {
		t.Fatal("job should be active on this pool")
	}

	select {
	case err := <-observed:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("handler observed %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("handler never observed cancellation")
	}

	// Give the executor a beat to record the outcome, then confirm the
	// cancelled state stuck: the late failure must not resurrect the job.
	time.Sleep(50 * time.Millisecond)
	got, _ := f.store.GetJob(context.Background(), j.ID)
	if got.State != job.StateCancelled {
		t.Errorf("state = %s, want cancelled", got.State)
	}
}

func TestPool_QueueManagerGatesDispatch(t *testing.T) {
	f := newFixture(t)

	var executed atomic.Int32
	f.register(job.TypePublishPrice, func(context.Context) (any, error) {
		executed.Add(1)
		return nil, nil
	})

	j := f.enqueue(t, job.TypePublishPrice, 3)

	gate := &gateManager{}
	pool := worker.NewPool(f.store, f.executor, ext.NewRegistry(slog.Default()), slog.Default(),
		worker.WithPoolConcurrency(1),
		worker.WithPollInterval(5*time.Millisecond),
		worker.WithQueueManager(gate),
	)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = pool.Stop(stopCtx)
	}()

	// Closed gate: the job stays pending and claimable by others.
	time.Sleep(50 * time.Millisecond)
	if executed.Load() != 0 {
		t.Fatal("job executed while the dispatch gate was closed")
	}
	got, _ := f.store.GetJob(context.Background(), j.ID)
	if got.State != job.StatePending {
		t.Fatalf("state = %s, want pending while throttled", got.State)
	}

	gate.open.Store(true)
	deadline := time.After(3 * time.Second)
	for executed.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("job never executed after the gate opened")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if gate.releases.Load() == 0 {
		t.Error("pool never released its dispatch slot")
	}
}

type gateManager struct {
	open     atomic.Bool
	releases atomic.Int32
}

func (g *gateManager) Acquire(job.Type, string) bool { return g.open.Load() }
func (g *gateManager) Release(job.Type, string)      { g.releases.Add(1) }
