package cluster

import (
	"context"
	"time"

	"github.com/george-itf/amazon-listing-helper-sub000/id"
)

// Store defines the persistence contract for fleet coordination.
type Store interface {
	// RegisterWorker adds a new worker to the fleet registry.
	RegisterWorker(ctx context.Context, w *Worker) error

	// DeregisterWorker removes a worker from the fleet registry.
	DeregisterWorker(ctx context.Context, workerID id.WorkerID) error

	// HeartbeatWorker updates the last-seen timestamp for a worker,
	// indicating it is still alive.
	HeartbeatWorker(ctx context.Context, workerID id.WorkerID) error

	// ListWorkers returns all registered workers.
	ListWorkers(ctx context.Context) ([]*Worker, error)

	// ReapDeadWorkers returns workers whose last-seen timestamp is
	// older than the given threshold, indicating they may have crashed.
	ReapDeadWorkers(ctx context.Context, threshold time.Duration) ([]*Worker, error)

	// AcquireLock attempts to take the named lock for workerID.
	// Returns true if the lock is now held. An expired lock counts as
	// free. Never blocks waiting for the current holder.
	AcquireLock(ctx context.Context, name string, workerID id.WorkerID, ttl time.Duration) (bool, error)

	// RenewLock extends the TTL of a lock the worker already holds.
	// Returns false if the worker is no longer the holder.
	RenewLock(ctx context.Context, name string, workerID id.WorkerID, ttl time.Duration) (bool, error)

	// ReleaseLock frees the named lock if workerID is the holder.
	// Releasing a lock held by someone else is a no-op.
	ReleaseLock(ctx context.Context, name string, workerID id.WorkerID) error

	// GetLock returns the current holder of the named lock, or nil if
	// the lock is free or expired.
	GetLock(ctx context.Context, name string) (*Lock, error)
}
