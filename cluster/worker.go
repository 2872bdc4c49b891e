package cluster

import (
	"time"

	"github.com/george-itf/amazon-listing-helper-sub000/id"
)

// WorkerState represents the lifecycle state of a worker.
type WorkerState string

const (
	// WorkerActive means the worker is healthy and processing jobs.
	WorkerActive WorkerState = "active"
	// WorkerDraining means the worker is finishing in-flight jobs
	// but not accepting new ones (graceful shutdown).
	WorkerDraining WorkerState = "draining"
	// WorkerDead means the worker has stopped responding and its jobs
	// are eligible for re-claiming.
	WorkerDead WorkerState = "dead"
)

// Worker represents one running pool instance in the fleet.
type Worker struct {
	ID          id.WorkerID       `json:"id"`
	Hostname    string            `json:"hostname"`
	Concurrency int               `json:"concurrency"`
	State       WorkerState       `json:"state"`
	LastSeen    time.Time         `json:"last_seen"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Lock is a snapshot of a named mutual-exclusion lock.
type Lock struct {
	Name       string      `json:"name"`
	HolderID   id.WorkerID `json:"holder_id"`
	AcquiredAt time.Time   `json:"acquired_at"`
	ExpiresAt  time.Time   `json:"expires_at"`
}

// Expired reports whether the lock's TTL has elapsed as of now.
func (l *Lock) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}
