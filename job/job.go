package job

import (
	"strings"
	"time"

	marketsync "github.com/george-itf/amazon-listing-helper-sub000"
	"github.com/george-itf/amazon-listing-helper-sub000/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StatePending means the job is waiting to be claimed by a worker.
	StatePending State = "pending"
	// StateRunning means a worker holds the job exclusively.
	StateRunning State = "running"
	// StateSucceeded means the job finished successfully.
	StateSucceeded State = "succeeded"
	// StatePartial means the job finished with some of its work done.
	StatePartial State = "partial"
	// StateFailed means the job exhausted its attempts and will not retry.
	StateFailed State = "failed"
	// StateRetrying means the job failed but is scheduled for another attempt.
	StateRetrying State = "retrying"
	// StateCancelled means the job was explicitly cancelled.
	StateCancelled State = "cancelled"
)

// Terminal reports whether a job in this state is immutable except for
// audit reads.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StatePartial, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Type is the closed enum of job types. Adding a type is a deliberate,
// visible change here plus a handler registration; the registry refuses
// to start with an uncovered type.
type Type string

const (
	// TypeSyncCycle runs one ingestion cycle of the market data pipeline.
	TypeSyncCycle Type = "sync-cycle"
	// TypePublishPrice pushes a recomputed price to the marketplace.
	TypePublishPrice Type = "publish-price"
	// TypeRecomputeEconomics recomputes derived pricing records for an entity.
	TypeRecomputeEconomics Type = "recompute-economics"
	// TypeGenerateContent regenerates listing content for an entity.
	TypeGenerateContent Type = "generate-content"
	// TypeComplianceScan scans listing text for compliance problems.
	TypeComplianceScan Type = "compliance-scan"
)

// Types returns the closed set of job types.
func Types() []Type {
	return []Type{
		TypeSyncCycle,
		TypePublishPrice,
		TypeRecomputeEconomics,
		TypeGenerateContent,
		TypeComplianceScan,
	}
}

// Valid reports whether t is a member of the closed type set.
func (t Type) Valid() bool {
	for _, known := range Types() {
		if t == known {
			return true
		}
	}
	return false
}

// Scope identifies what a job operates on: an entity kind plus an
// optional entity identifier (empty for kind-wide jobs like a sync cycle).
type Scope struct {
	EntityKind    string `json:"entity_kind"`
	EntityID      string `json:"entity_id,omitempty"`
	MarketplaceID string `json:"marketplace_id,omitempty"`
}

// Job represents a unit of asynchronous work.
type Job struct {
	marketsync.Entity

	ID          id.JobID             `json:"id"`
	Type        Type                 `json:"type"`
	Scope       Scope                `json:"scope"`
	Payload     []byte               `json:"payload,omitempty"`
	Result      []byte               `json:"result,omitempty"`
	State       State                `json:"state"`
	Priority    int                  `json:"priority"`
	MaxAttempts int                  `json:"max_attempts"`
	Attempts    int                  `json:"attempts"`
	LastError   *marketsync.Failure  `json:"last_error,omitempty"`
	DedupKey    string               `json:"dedup_key,omitempty"`
	WorkerID    id.WorkerID          `json:"worker_id,omitempty"`
	RunAt       time.Time            `json:"run_at"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
	HeartbeatAt *time.Time           `json:"heartbeat_at,omitempty"`
	Timeout     time.Duration        `json:"timeout,omitempty"`
}

// DedupKey composes the canonical idempotency key for job creation:
// jobType:entityKind:entityID, with an optional caller correlation ID
// appended. Two jobs with the same key conflict while the first is
// non-terminal.
func DedupKey(t Type, scope Scope, correlationID string) string {
	parts := []string{string(t), scope.EntityKind, scope.EntityID}
	if correlationID != "" {
		parts = append(parts, correlationID)
	}
	return strings.Join(parts, ":")
}
