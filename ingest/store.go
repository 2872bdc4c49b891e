package ingest

import (
	"context"

	"github.com/george-itf/amazon-listing-helper-sub000/id"
)

// CycleListOpts filters ListCycles.
type CycleListOpts struct {
	Status CycleStatus // zero value matches all
	Limit  int
	Offset int
}

// CycleStore persists ingestion cycle records.
type CycleStore interface {
	// CreateCycle persists a new cycle in its initial state.
	CreateCycle(ctx context.Context, c *Cycle) error

	// UpdateCycle records a cycle's terminal outcome. Returns
	// ErrCycleNotFound if the cycle does not exist.
	UpdateCycle(ctx context.Context, c *Cycle) error

	// GetCycle retrieves a cycle by ID.
	GetCycle(ctx context.Context, cycleID id.CycleID) (*Cycle, error)

	// ListCycles returns cycles matching opts, most recent first.
	ListCycles(ctx context.Context, opts CycleListOpts) ([]*Cycle, error)
}

// PayloadStore persists raw fetched documents. Writes are append-only.
type PayloadStore interface {
	// PutRawPayload appends one fetched document.
	PutRawPayload(ctx context.Context, p *RawPayload) error

	// ListPayloadsByCycle returns every payload captured during a cycle.
	ListPayloadsByCycle(ctx context.Context, cycleID id.CycleID) ([]*RawPayload, error)

	// ListPayloadsForEntity returns the payloads captured for one
	// listing during a cycle, across all sources.
	ListPayloadsForEntity(ctx context.Context, cycleID id.CycleID, entityID string) ([]*RawPayload, error)
}

// IssueStore persists data-quality issues.
type IssueStore interface {
	// PutDQIssue records a detected data problem.
	PutDQIssue(ctx context.Context, issue *DQIssue) error

	// ListDQIssues returns the issues recorded during a cycle.
	ListDQIssues(ctx context.Context, cycleID id.CycleID) ([]*DQIssue, error)
}

// Store aggregates the ingestion persistence contracts.
type Store interface {
	CycleStore
	PayloadStore
	IssueStore
}
