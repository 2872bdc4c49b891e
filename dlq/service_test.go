package dlq_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	marketsync "github.com/george-itf/amazon-listing-helper-sub000"
	"github.com/george-itf/amazon-listing-helper-sub000/dlq"
	"github.com/george-itf/amazon-listing-helper-sub000/id"
	"github.com/george-itf/amazon-listing-helper-sub000/job"
	"github.com/george-itf/amazon-listing-helper-sub000/store/memory"
)

func newService(t *testing.T) (*dlq.Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return dlq.NewService(st, st, logger), st
}

func failedJob() *job.Job {
	return &job.Job{
		Entity:      marketsync.NewEntity(),
		ID:          id.NewJobID(),
		Type:        job.TypePublishPrice,
		Scope:       job.Scope{EntityKind: "listing", EntityID: "B0DLQ001"},
		Payload:     []byte(`{"price":12.49}`),
		State:       job.StateFailed,
		Attempts:    3,
		MaxAttempts: 3,
	}
}

func TestService_RecordArchivesFailure(t *testing.T) {
	svc, st := newService(t)

	j := failedJob()
	failure := marketsync.Failf(marketsync.CodeExternalAPI, "marketplace 503")
	svc.Record(context.Background(), j, failure)

	entries, err := st.ListDLQ(context.Background(), dlq.ListOpts{})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.JobID != j.ID {
		t.Errorf("JobID = %s, want %s", entry.JobID, j.ID)
	}
	if entry.JobType != job.TypePublishPrice {
		t.Errorf("JobType = %q", entry.JobType)
	}
	if entry.Attempts != 3 || entry.MaxAttempts != 3 {
		t.Errorf("Attempts/MaxAttempts = %d/%d, want 3/3", entry.Attempts, entry.MaxAttempts)
	}
	if entry.Failure == nil || entry.Failure.Code != marketsync.CodeExternalAPI {
		t.Errorf("Failure = %+v, want EXTERNAL_API", entry.Failure)
	}
	if entry.ReplayedAt != nil {
		t.Error("fresh entry should not be marked replayed")
	}
}

func TestService_ReplayReEnqueuesWithFreshBudget(t *testing.T) {
	svc, st := newService(t)

	j := failedJob()
	svc.Record(context.Background(), j, marketsync.Failf(marketsync.CodePermanent, "gone"))

	entries, _ := st.ListDLQ(context.Background(), dlq.ListOpts{})
	replayed, err := svc.Replay(context.Background(), entries[0].ID)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if replayed.ID == j.ID {
		t.Error("replayed job should get a fresh ID")
	}
	if replayed.State != job.StatePending {
		t.Errorf("State = %q, want pending", replayed.State)
	}
	if replayed.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", replayed.Attempts)
	}
	if replayed.Type != j.Type || replayed.Scope != j.Scope {
		t.Errorf("replayed type/scope = %q/%+v", replayed.Type, replayed.Scope)
	}
	if string(replayed.Payload) != string(j.Payload) {
		t.Errorf("Payload = %s, want %s", replayed.Payload, j.Payload)
	}

	// The archive entry is marked, not removed.
	entry, err := st.GetDLQ(context.Background(), entries[0].ID)
	if err != nil {
		t.Fatalf("GetDLQ: %v", err)
	}
	if entry.ReplayedAt == nil {
		t.Error("entry should be marked replayed")
	}

	// The new job is claimable.
	pending, err := st.ListPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != replayed.ID {
		t.Fatalf("pending = %v, want the replayed job", pending)
	}
}

func TestService_ReplayUnknownEntry(t *testing.T) {
	svc, _ := newService(t)

	if _, err := svc.Replay(context.Background(), id.NewDLQID()); err == nil {
		t.Fatal("replay of a missing entry should fail")
	}
}

func TestStore_PurgeDLQ(t *testing.T) {
	svc, st := newService(t)

	svc.Record(context.Background(), failedJob(), marketsync.Failf(marketsync.CodeTimeout, "slow"))
	svc.Record(context.Background(), failedJob(), marketsync.Failf(marketsync.CodeTimeout, "slow"))

	n, err := st.PurgeDLQ(context.Background(), time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("PurgeDLQ: %v", err)
	}
	if n != 2 {
		t.Errorf("purged = %d, want 2", n)
	}
	if c, _ := st.CountDLQ(context.Background()); c != 0 {
		t.Errorf("CountDLQ = %d, want 0", c)
	}
}
