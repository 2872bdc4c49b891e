package cron_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	marketsync "github.com/george-itf/amazon-listing-helper-sub000"
	"github.com/george-itf/amazon-listing-helper-sub000/cron"
	"github.com/george-itf/amazon-listing-helper-sub000/id"
	"github.com/george-itf/amazon-listing-helper-sub000/job"
	"github.com/george-itf/amazon-listing-helper-sub000/store/memory"
)

type capturedEnqueue struct {
	mu    sync.Mutex
	types []job.Type
}

func (c *capturedEnqueue) fn(_ context.Context, t job.Type, _ []byte, _ ...job.Option) (id.JobID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types = append(c.types, t)
	return id.NewJobID(), nil
}

func (c *capturedEnqueue) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.types)
}

func registerDueEntry(t *testing.T, s *memory.Store, name string) *cron.Entry {
	t.Helper()
	past := time.Now().UTC().Add(-time.Minute)
	entry := &cron.Entry{
		Entity:    marketsync.NewEntity(),
		ID:        id.NewCronID(),
		Name:      name,
		Schedule:  "@every 1h",
		JobType:   job.TypeSyncCycle,
		NextRunAt: &past,
		Enabled:   true,
	}
	if err := s.RegisterCron(context.Background(), entry); err != nil {
		t.Fatalf("register cron: %v", err)
	}
	return entry
}

func startScheduler(t *testing.T, s *memory.Store, enq cron.EnqueueFunc, workerID id.WorkerID) *cron.Scheduler {
	t.Helper()
	sched := cron.NewScheduler(s, s, enq, nil, workerID, slog.Default(),
		cron.WithTickInterval(10*time.Millisecond),
		cron.WithSchedulerLockTTL(time.Second),
	)
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("start scheduler: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = sched.Stop(ctx)
	})
	return sched
}

func TestScheduler_FiresDueEntryOnce(t *testing.T) {
	s := memory.New()
	entry := registerDueEntry(t, s, "hourly-sync")

	captured := &capturedEnqueue{}
	startScheduler(t, s, captured.fn, id.NewWorkerID())

	deadline := time.After(3 * time.Second)
	for captured.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("due entry never fired")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// The schedule is hourly, so the entry must not fire again within the
	// test window.
	time.Sleep(100 * time.Millisecond)
	if got := captured.count(); got != 1 {
		t.Errorf("entry fired %d times, want 1", got)
	}

	updated, err := s.GetCron(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("get cron: %v", err)
	}
	if updated.LastRunAt == nil {
		t.Error("LastRunAt should be recorded after firing")
	}
	if updated.NextRunAt == nil || !updated.NextRunAt.After(time.Now().UTC()) {
		t.Errorf("NextRunAt = %v, want advanced into the future", updated.NextRunAt)
	}
}

func TestScheduler_DisabledEntryDoesNotFire(t *testing.T) {
	s := memory.New()
	entry := registerDueEntry(t, s, "disabled-sync")
	entry.Enabled = false
	if err := s.UpdateCronEntry(context.Background(), entry); err != nil {
		t.Fatalf("update cron: %v", err)
	}

	captured := &capturedEnqueue{}
	startScheduler(t, s, captured.fn, id.NewWorkerID())

	time.Sleep(100 * time.Millisecond)
	if got := captured.count(); got != 0 {
		t.Errorf("disabled entry fired %d times, want 0", got)
	}
}

func TestScheduler_OnlyLockHolderTicks(t *testing.T) {
	s := memory.New()
	registerDueEntry(t, s, "contended-sync")

	// Another instance already holds the scheduler lock and keeps it for
	// the whole test window.
	otherID := id.NewWorkerID()
	acquired, err := s.AcquireLock(context.Background(), "cron-scheduler", otherID, time.Minute)
	if err != nil || !acquired {
		t.Fatalf("pre-acquire scheduler lock: acquired=%v err=%v", acquired, err)
	}

	captured := &capturedEnqueue{}
	startScheduler(t, s, captured.fn, id.NewWorkerID())

	time.Sleep(150 * time.Millisecond)
	if got := captured.count(); got != 0 {
		t.Errorf("non-holder fired %d entries, want 0", got)
	}

	// Once the holder lets go, this instance takes over and fires.
	if err := s.ReleaseLock(context.Background(), "cron-scheduler", otherID); err != nil {
		t.Fatalf("release scheduler lock: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for captured.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("entry never fired after lock handover")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestScheduler_EntryLockSkipsConcurrentFire(t *testing.T) {
	s := memory.New()
	entry := registerDueEntry(t, s, "locked-sync")

	// Another worker holds the per-entry lock, so the entry is skipped
	// even though it is due.
	otherID := id.NewWorkerID()
	acquired, err := s.AcquireCronLock(context.Background(), entry.ID, otherID, time.Minute)
	if err != nil || !acquired {
		t.Fatalf("pre-acquire entry lock: acquired=%v err=%v", acquired, err)
	}

	captured := &capturedEnqueue{}
	startScheduler(t, s, captured.fn, id.NewWorkerID())

	time.Sleep(150 * time.Millisecond)
	if got := captured.count(); got != 0 {
		t.Errorf("entry fired %d times while locked elsewhere, want 0", got)
	}
}

func TestParseSchedule(t *testing.T) {
	cases := []struct {
		expr string
		ok   bool
	}{
		{"*/30 * * * *", true},
		{"0 3 * * 1", true},
		{"@every 30m", true},
		{"@hourly", true},
		{"not a schedule", false},
		{"* * * * * *", false}, // six fields
	}
	for _, tc := range cases {
		_, err := cron.ParseSchedule(tc.expr)
		if tc.ok && err != nil {
			t.Errorf("ParseSchedule(%q) = %v, want ok", tc.expr, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("ParseSchedule(%q) succeeded, want error", tc.expr)
		}
	}
}
