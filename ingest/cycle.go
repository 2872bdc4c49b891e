package ingest

import (
	"time"

	marketsync "github.com/george-itf/amazon-listing-helper-sub000"
	"github.com/george-itf/amazon-listing-helper-sub000/id"
)

// CycleStatus represents the outcome of one ingestion cycle.
type CycleStatus string

const (
	// CycleRunning means the cycle holds the single-flight lock and is
	// fetching or reconciling.
	CycleRunning CycleStatus = "running"
	// CycleSucceeded means every targeted listing transformed
	// successfully.
	CycleSucceeded CycleStatus = "succeeded"
	// CyclePartial means some listings failed to transform or never
	// produced a raw payload.
	CyclePartial CycleStatus = "partial"
	// CycleFailed means the cycle aborted before reaching the
	// reconciliation step.
	CycleFailed CycleStatus = "failed"
	// CycleSkipped means another cycle already held the single-flight
	// lock; nothing ran.
	CycleSkipped CycleStatus = "skipped"
)

// Terminal reports whether the status is an end state.
func (s CycleStatus) Terminal() bool {
	return s != CycleRunning
}

// Strategy selects which listings a cycle targets.
type Strategy string

const (
	// StrategyFullRefresh targets every tracked listing.
	StrategyFullRefresh Strategy = "full-refresh"
)

// Cycle is one run of the scheduled ingestion pipeline. A cycle record
// is created when the single-flight lock is acquired, updated exactly
// once at completion, and never mutated afterward.
type Cycle struct {
	marketsync.Entity

	ID          id.CycleID    `json:"id"`
	Strategy    Strategy      `json:"strategy"`
	Status      CycleStatus   `json:"status"`
	TargetCount int           `json:"target_count"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Error       string        `json:"error,omitempty"`
}
