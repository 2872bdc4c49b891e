package ingest

import (
	"context"

	"github.com/george-itf/amazon-listing-helper-sub000/id"
)

// Target identifies one listing frozen into a cycle's target set.
type Target struct {
	EntityKind    string `json:"entity_kind"`
	EntityID      string `json:"entity_id"`
	MarketplaceID string `json:"marketplace_id,omitempty"`
}

// TargetResolver produces the set of listings a cycle should fetch.
// The orchestrator calls it exactly once per cycle and freezes the
// result; changes to the tracked set mid-cycle have no effect.
type TargetResolver interface {
	ResolveTargets(ctx context.Context) ([]Target, error)
}

// SourceFetcher fetches documents from one external data source.
// Implementations handle their own pagination inside FetchBatch; the
// orchestrator handles batching, concurrency, and rate limiting.
type SourceFetcher interface {
	// Name identifies the source, e.g. "catalog-api" or "pricing-api".
	// It tags the raw payloads this fetcher produces.
	Name() string

	// EndpointClass selects which rate-limit bucket gates this
	// source's calls.
	EndpointClass() string

	// FetchBatch retrieves documents for the given listing IDs.
	// IDs absent from the result simply produced no data; that is not
	// an error. A marketsync.RateLimitError triggers the bounded
	// inline wait-and-retry in the orchestrator.
	FetchBatch(ctx context.Context, entityIDs []string) (map[string][]byte, error)
}

// LongOperation marks a SourceFetcher whose FetchBatch starts an
// asynchronous report-style operation on the external service and
// polls it to completion. Fetchers reporting true run under the
// orchestrator's long-operation ceiling instead of the per-call fetch
// timeout.
type LongOperation interface {
	LongOperation() bool
}

// Transformer reconciles all source documents captured for one listing
// into canonical derived records. External collaborator; one listing's
// failure never affects another's.
type Transformer interface {
	Transform(ctx context.Context, target Target, cycleID id.CycleID, payloadsBySource map[string][]byte) (bool, error)
}
