package ingest_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	marketsync "github.com/george-itf/amazon-listing-helper-sub000"
	"github.com/george-itf/amazon-listing-helper-sub000/id"
	"github.com/george-itf/amazon-listing-helper-sub000/ingest"
	"github.com/george-itf/amazon-listing-helper-sub000/ratelimit"
	"github.com/george-itf/amazon-listing-helper-sub000/store/memory"
)

// staticResolver returns a fixed target list and counts invocations.
type staticResolver struct {
	mu      sync.Mutex
	targets []ingest.Target
	calls   int
	err     error
}

func (r *staticResolver) ResolveTargets(_ context.Context) ([]ingest.Target, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.targets, nil
}

// mapFetcher returns canned documents for a subset of requested IDs.
type mapFetcher struct {
	name string
	docs map[string][]byte

	mu         sync.Mutex
	batchCalls int
	// errOnCall makes the nth FetchBatch call (1-based) fail.
	errOnCall int
	err       error
}

func (f *mapFetcher) Name() string          { return f.name }
func (f *mapFetcher) EndpointClass() string { return f.name }

func (f *mapFetcher) FetchBatch(_ context.Context, entityIDs []string) (map[string][]byte, error) {
	f.mu.Lock()
	f.batchCalls++
	call := f.batchCalls
	f.mu.Unlock()

	if f.errOnCall != 0 && call == f.errOnCall {
		return nil, f.err
	}

	out := make(map[string][]byte)
	for _, entityID := range entityIDs {
		if doc, ok := f.docs[entityID]; ok {
			out[entityID] = doc
		}
	}
	return out, nil
}

// recordingTransformer succeeds or fails per entity ID.
type recordingTransformer struct {
	mu       sync.Mutex
	seen     map[string]map[string][]byte
	failIDs  map[string]bool
	panicIDs map[string]bool
}

func newRecordingTransformer() *recordingTransformer {
	return &recordingTransformer{seen: make(map[string]map[string][]byte)}
}

func (tr *recordingTransformer) Transform(_ context.Context, target ingest.Target, _ id.CycleID, payloadsBySource map[string][]byte) (bool, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.seen[target.EntityID] = payloadsBySource
	if tr.panicIDs[target.EntityID] {
		panic("transform exploded")
	}
	if tr.failIDs[target.EntityID] {
		return false, errors.New("transform refused")
	}
	return true, nil
}

func listingTargets(ids ...string) []ingest.Target {
	targets := make([]ingest.Target, len(ids))
	for i, entityID := range ids {
		targets[i] = ingest.Target{EntityKind: "listing", EntityID: entityID, MarketplaceID: "ATVPDKIKX0DER"}
	}
	return targets
}

func newOrchestrator(s *memory.Store, resolver ingest.TargetResolver, transformer ingest.Transformer, fetchers ...ingest.SourceFetcher) *ingest.Orchestrator {
	logger := slog.Default()
	limiter := ratelimit.NewManager(ratelimit.Config{Class: "catalog-api", RatePerSec: 1000, Capacity: 1000})
	reconciler := ingest.NewReconciler(s, s, transformer, logger)
	return ingest.NewOrchestrator(
		s, resolver, fetchers, limiter, s, id.NewWorkerID(), reconciler, logger,
		ingest.WithBatchSize(2),
		ingest.WithFetchTimeout(time.Second),
		ingest.WithLockTTL(time.Minute),
	)
}

func TestRunCycle_AllTargetsSucceed(t *testing.T) {
	s := memory.New()
	resolver := &staticResolver{targets: listingTargets("A1", "B2")}
	fetcher := &mapFetcher{name: "catalog-api", docs: map[string][]byte{
		"A1": []byte(`{"asin":"A1"}`),
		"B2": []byte(`{"asin":"B2"}`),
	}}
	transformer := newRecordingTransformer()
	o := newOrchestrator(s, resolver, transformer, fetcher)

	cycle, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if cycle.Status != ingest.CycleSucceeded {
		t.Errorf("status = %s, want succeeded", cycle.Status)
	}
	if cycle.Succeeded != 2 || cycle.Failed != 0 {
		t.Errorf("counts = %d/%d, want 2/0", cycle.Succeeded, cycle.Failed)
	}
	if resolver.calls != 1 {
		t.Errorf("resolver called %d times, want 1 (targets frozen per cycle)", resolver.calls)
	}

	// The terminal record is persisted.
	got, err := s.GetCycle(context.Background(), cycle.ID)
	if err != nil {
		t.Fatalf("get cycle: %v", err)
	}
	if got.Status != ingest.CycleSucceeded || got.CompletedAt == nil {
		t.Errorf("persisted cycle = %s completed=%v", got.Status, got.CompletedAt)
	}
}

func TestRunCycle_SingleFlight(t *testing.T) {
	s := memory.New()
	release := make(chan struct{})
	started := make(chan struct{})

	// The first cycle parks inside ResolveTargets while holding the lock.
	blockingResolver := &blockingResolverT{started: started, release: release}
	transformer := newRecordingTransformer()
	first := newOrchestrator(s, blockingResolver, transformer)
	second := newOrchestrator(s, &staticResolver{targets: listingTargets("A1")}, transformer)

	var (
		wg         sync.WaitGroup
		firstCycle *ingest.Cycle
		firstErr   error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstCycle, firstErr = first.RunCycle(context.Background())
	}()

	<-started
	skipped, err := second.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("concurrent run: %v", err)
	}
	if skipped.Status != ingest.CycleSkipped {
		t.Fatalf("concurrent cycle status = %s, want skipped", skipped.Status)
	}

	close(release)
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("first cycle: %v", firstErr)
	}
	if firstCycle.Status == ingest.CycleSkipped {
		t.Fatal("exactly one invocation should run; both skipped")
	}

	// The lock was released: a later run proceeds.
	again, err := second.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("run after release: %v", err)
	}
	if again.Status == ingest.CycleSkipped {
		t.Error("cycle after lock release should not be skipped")
	}
}

type blockingResolverT struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *blockingResolverT) ResolveTargets(_ context.Context) ([]ingest.Target, error) {
	r.once.Do(func() { close(r.started) })
	<-r.release
	return nil, nil
}

func TestRunCycle_VanishingEntityDetection(t *testing.T) {
	s := memory.New()
	resolver := &staticResolver{targets: listingTargets("A", "B", "C")}
	// Only A and C produce payloads; B vanishes.
	fetcher := &mapFetcher{name: "catalog-api", docs: map[string][]byte{
		"A": []byte(`{"asin":"A"}`),
		"C": []byte(`{"asin":"C"}`),
	}}
	transformer := newRecordingTransformer()
	o := newOrchestrator(s, resolver, transformer, fetcher)

	cycle, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	if cycle.Status != ingest.CyclePartial {
		t.Errorf("status = %s, want partial", cycle.Status)
	}
	if cycle.Succeeded > 2 {
		t.Errorf("succeeded = %d, want <= 2", cycle.Succeeded)
	}
	if cycle.Failed < 1 {
		t.Errorf("failed = %d, want >= 1", cycle.Failed)
	}

	issues, err := s.ListDQIssues(context.Background(), cycle.ID)
	if err != nil {
		t.Fatalf("list issues: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("issues = %d, want exactly 1", len(issues))
	}
	issue := issues[0]
	if issue.EntityID != "B" {
		t.Errorf("issue entity = %s, want B", issue.EntityID)
	}
	if issue.Severity != ingest.IssueCritical {
		t.Errorf("issue severity = %s, want critical", issue.Severity)
	}
	if issue.Kind != ingest.IssueKindDataNeverArrived {
		t.Errorf("issue kind = %s, want %s", issue.Kind, ingest.IssueKindDataNeverArrived)
	}

	// The vanished listing never reaches the transformer.
	if _, ok := transformer.seen["B"]; ok {
		t.Error("vanished listing must not be transformed")
	}
}

func TestRunCycle_PartialFetchYieldsPartialStatus(t *testing.T) {
	s := memory.New()
	resolver := &staticResolver{targets: listingTargets("A1", "B2")}
	fetcher := &mapFetcher{name: "catalog-api", docs: map[string][]byte{
		"A1": []byte(`{"asin":"A1"}`),
	}}
	transformer := newRecordingTransformer()
	o := newOrchestrator(s, resolver, transformer, fetcher)

	cycle, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if cycle.Status != ingest.CyclePartial {
		t.Errorf("status = %s, want partial", cycle.Status)
	}
	if cycle.Succeeded != 1 || cycle.Failed != 1 {
		t.Errorf("counts = %d/%d, want 1/1", cycle.Succeeded, cycle.Failed)
	}

	issues, _ := s.ListDQIssues(context.Background(), cycle.ID)
	if len(issues) != 1 || issues[0].EntityID != "B2" {
		t.Fatalf("issues = %v, want one for B2", issues)
	}
}

func TestRunCycle_BatchFailureIsIsolated(t *testing.T) {
	s := memory.New()
	// Batch size 2 and 4 targets: two batches. The first batch errors,
	// the second must still land.
	resolver := &staticResolver{targets: listingTargets("A", "B", "C", "D")}
	fetcher := &mapFetcher{
		name: "catalog-api",
		docs: map[string][]byte{
			"A": []byte(`{}`), "B": []byte(`{}`), "C": []byte(`{}`), "D": []byte(`{}`),
		},
		errOnCall: 1,
		err:       errors.New("upstream 500"),
	}
	transformer := newRecordingTransformer()
	o := newOrchestrator(s, resolver, transformer, fetcher)

	cycle, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	payloads, _ := s.ListPayloadsByCycle(context.Background(), cycle.ID)
	if len(payloads) != 2 {
		t.Fatalf("payloads = %d, want 2 from the surviving batch", len(payloads))
	}
	if cycle.Status != ingest.CyclePartial {
		t.Errorf("status = %s, want partial", cycle.Status)
	}
}

func TestRunCycle_ThrottleRetriesInline(t *testing.T) {
	s := memory.New()
	resolver := &staticResolver{targets: listingTargets("A1")}
	fetcher := &mapFetcher{
		name:      "catalog-api",
		docs:      map[string][]byte{"A1": []byte(`{}`)},
		errOnCall: 1,
		err:       &marketsync.RateLimitError{RetryAfter: 10 * time.Millisecond, Remaining: -1},
	}
	transformer := newRecordingTransformer()
	o := newOrchestrator(s, resolver, transformer, fetcher)

	cycle, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if cycle.Status != ingest.CycleSucceeded {
		t.Errorf("status = %s, want succeeded after inline throttle retry", cycle.Status)
	}
	if fetcher.batchCalls != 2 {
		t.Errorf("fetch calls = %d, want 2 (throttle then success)", fetcher.batchCalls)
	}
}

func TestRunCycle_ResolverFailureIsFailedCycle(t *testing.T) {
	s := memory.New()
	resolver := &staticResolver{err: errors.New("tracked set unavailable")}
	o := newOrchestrator(s, resolver, newRecordingTransformer())

	cycle, err := o.RunCycle(context.Background())
	if err == nil {
		t.Fatal("expected resolver error to surface")
	}
	if cycle.Status != ingest.CycleFailed {
		t.Errorf("status = %s, want failed", cycle.Status)
	}

	// The failed cycle record is persisted for visibility.
	got, getErr := s.GetCycle(context.Background(), cycle.ID)
	if getErr != nil {
		t.Fatalf("get cycle: %v", getErr)
	}
	if got.Status != ingest.CycleFailed || got.Error == "" {
		t.Errorf("persisted = %s error=%q, want failed with detail", got.Status, got.Error)
	}
}

func TestReconcile_TransformFailureIsIsolated(t *testing.T) {
	s := memory.New()
	resolver := &staticResolver{targets: listingTargets("A", "B", "C")}
	fetcher := &mapFetcher{name: "catalog-api", docs: map[string][]byte{
		"A": []byte(`{}`), "B": []byte(`{}`), "C": []byte(`{}`),
	}}
	transformer := newRecordingTransformer()
	transformer.failIDs = map[string]bool{"A": true}
	transformer.panicIDs = map[string]bool{"B": true}
	o := newOrchestrator(s, resolver, transformer, fetcher)

	cycle, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	// A failed, B panicked, C succeeded; every target was processed.
	if cycle.Succeeded != 1 || cycle.Failed != 2 {
		t.Errorf("counts = %d/%d, want 1/2", cycle.Succeeded, cycle.Failed)
	}
	if len(transformer.seen) != 3 {
		t.Errorf("transformer saw %d listings, want 3", len(transformer.seen))
	}
}

func TestRunCycle_SingleFlightSameInstance(t *testing.T) {
	s := memory.New()
	release := make(chan struct{})
	started := make(chan struct{})

	// One orchestrator, one worker identity: a manual trigger racing the
	// scheduled cycle on the same instance. The lock must still admit
	// exactly one invocation.
	o := newOrchestrator(s, &blockingResolverT{started: started, release: release}, newRecordingTransformer())

	var (
		wg         sync.WaitGroup
		firstCycle *ingest.Cycle
		firstErr   error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstCycle, firstErr = o.RunCycle(context.Background())
	}()

	<-started
	skipped, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("concurrent run: %v", err)
	}
	if skipped.Status != ingest.CycleSkipped {
		t.Fatalf("concurrent cycle status = %s, want skipped", skipped.Status)
	}

	close(release)
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("first cycle: %v", firstErr)
	}
	if firstCycle.Status == ingest.CycleSkipped {
		t.Fatal("exactly one invocation should run; both skipped")
	}

	// The invocation's lock token was released with the cycle.
	again, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("run after release: %v", err)
	}
	if again.Status == ingest.CycleSkipped {
		t.Error("cycle after lock release should not be skipped")
	}
}

// reportFetcher simulates a generate-then-poll source: every batch call
// takes longer than the ordinary fetch timeout allows.
type reportFetcher struct {
	mapFetcher
	delay time.Duration
}

func (f *reportFetcher) LongOperation() bool { return true }

func (f *reportFetcher) FetchBatch(ctx context.Context, entityIDs []string) (map[string][]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(f.delay):
	}
	return f.mapFetcher.FetchBatch(ctx, entityIDs)
}

func TestRunCycle_LongOpFetcherOutlivesFetchTimeout(t *testing.T) {
	s := memory.New()
	resolver := &staticResolver{targets: listingTargets("A1")}
	fetcher := &reportFetcher{
		mapFetcher: mapFetcher{name: "reports-api", docs: map[string][]byte{"A1": []byte(`{"asin":"A1"}`)}},
		delay:      50 * time.Millisecond,
	}
	transformer := newRecordingTransformer()
	logger := slog.Default()
	limiter := ratelimit.NewManager()
	reconciler := ingest.NewReconciler(s, s, transformer, logger)
	o := ingest.NewOrchestrator(
		s, resolver, []ingest.SourceFetcher{fetcher}, limiter, s, id.NewWorkerID(), reconciler, logger,
		ingest.WithBatchSize(2),
		ingest.WithFetchTimeout(5*time.Millisecond),
		ingest.WithLongOpTimeout(time.Second),
		ingest.WithLockTTL(time.Minute),
	)

	cycle, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if cycle.Status != ingest.CycleSucceeded {
		t.Errorf("status = %s, want succeeded under the long-operation ceiling", cycle.Status)
	}
	if cycle.Succeeded != 1 {
		t.Errorf("succeeded = %d, want 1", cycle.Succeeded)
	}
}
