package job_test

import (
	"context"
	"errors"
	"testing"

	marketsync "github.com/george-itf/amazon-listing-helper-sub000"
	"github.com/george-itf/amazon-listing-helper-sub000/job"
)

type pricePayload struct {
	SKU   string  `json:"sku"`
	Price float64 `json:"price"`
}

func TestRegistry_TypedRoundTrip(t *testing.T) {
	r := job.NewRegistry()

	var got pricePayload
	job.RegisterDefinition(r, job.NewDefinition(job.TypePublishPrice,
		func(_ context.Context, p pricePayload) (any, error) {
			got = p
			return map[string]string{"status": "published"}, nil
		},
	))

	handler, ok := r.Get(job.TypePublishPrice)
	if !ok {
		t.Fatal("handler not found after registration")
	}

	j := &job.Job{Type: job.TypePublishPrice, Payload: []byte(`{"sku":"B00X","price":19.99}`)}
	result, err := handler(context.Background(), j)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if got.SKU != "B00X" || got.Price != 19.99 {
		t.Errorf("payload = %+v, want sku B00X price 19.99", got)
	}
	if string(result) != `{"status":"published"}` {
		t.Errorf("result = %s, want published status", result)
	}
}

func TestRegistry_BadPayloadIsValidationFailure(t *testing.T) {
	r := job.NewRegistry()
	job.RegisterDefinition(r, job.NewDefinition(job.TypePublishPrice,
		func(_ context.Context, _ pricePayload) (any, error) { return nil, nil },
	))

	handler, _ := r.Get(job.TypePublishPrice)
	j := &job.Job{Type: job.TypePublishPrice, Payload: []byte(`{not json`)}
	_, err := handler(context.Background(), j)

	var f *marketsync.Failure
	if !errors.As(err, &f) {
		t.Fatalf("error = %v, want *marketsync.Failure", err)
	}
	if f.Code != marketsync.CodeValidation {
		t.Errorf("code = %s, want %s", f.Code, marketsync.CodeValidation)
	}
}

func TestRegistry_Precheck(t *testing.T) {
	r := job.NewRegistry()
	def := job.NewDefinition(job.TypePublishPrice,
		func(_ context.Context, _ pricePayload) (any, error) { return nil, nil },
	).WithPrecondition(func(_ context.Context, p pricePayload) error {
		if p.Price <= 0 {
			return marketsync.ErrPreconditionFailed
		}
		return nil
	})
	job.RegisterDefinition(r, def)

	if err := r.Precheck(context.Background(), job.TypePublishPrice, []byte(`{"sku":"B00X","price":10}`)); err != nil {
		t.Errorf("valid payload rejected: %v", err)
	}
	err := r.Precheck(context.Background(), job.TypePublishPrice, []byte(`{"sku":"B00X","price":-1}`))
	if !errors.Is(err, marketsync.ErrPreconditionFailed) {
		t.Errorf("error = %v, want ErrPreconditionFailed", err)
	}

	// Types without a registered precheck pass.
	if err := r.Precheck(context.Background(), job.TypeComplianceScan, nil); err != nil {
		t.Errorf("unregistered precheck should pass, got %v", err)
	}
}

func TestRegistry_ValidateCoverage(t *testing.T) {
	r := job.NewRegistry()
	err := r.ValidateCoverage()
	if !errors.Is(err, marketsync.ErrHandlerNotRegistered) {
		t.Fatalf("empty registry error = %v, want ErrHandlerNotRegistered", err)
	}

	for _, typ := range job.Types() {
		job.RegisterDefinition(r, job.NewDefinition(typ,
			func(_ context.Context, _ struct{}) (any, error) { return nil, nil },
		))
	}
	if err := r.ValidateCoverage(); err != nil {
		t.Errorf("full registry should validate, got %v", err)
	}
}

func TestDedupKey_Composition(t *testing.T) {
	scope := job.Scope{EntityKind: "listing", EntityID: "B00X"}

	key := job.DedupKey(job.TypePublishPrice, scope, "")
	if key != "publish-price:listing:B00X" {
		t.Errorf("key = %q", key)
	}

	withCorr := job.DedupKey(job.TypePublishPrice, scope, "req-42")
	if withCorr != "publish-price:listing:B00X:req-42" {
		t.Errorf("key = %q", withCorr)
	}
}

func TestState_Terminal(t *testing.T) {
	terminal := []job.State{job.StateSucceeded, job.StatePartial, job.StateFailed, job.StateCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	live := []job.State{job.StatePending, job.StateRunning, job.StateRetrying}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestType_Valid(t *testing.T) {
	if !job.TypeSyncCycle.Valid() {
		t.Error("sync-cycle should be valid")
	}
	if job.Type("mystery").Valid() {
		t.Error("unknown type should be invalid")
	}
}
