// Package cluster provides distributed coordination for worker fleets:
// worker registration with heartbeats, and named mutual-exclusion locks.
//
// # Worker Entity
//
// Each running pool instance registers itself as a [Worker] with a
// unique [id.WorkerID], its hostname, and its concurrency limit.
// Workers send periodic heartbeats; a worker whose heartbeat is older
// than the configured threshold is considered dead, and any jobs it
// held in a running state become eligible for re-claiming.
//
// # Named Locks
//
// A named lock guarantees that at most one holder across the whole
// fleet owns a given name at a time. Locks carry a TTL so a crashed
// holder cannot wedge the system: once the TTL elapses the lock is free
// for the taking. The ingestion orchestrator uses a named lock to keep
// sync cycles single-flight; the cron scheduler uses per-entry locks so
// an entry fires on exactly one instance.
//
// Acquisition never blocks or queues. [Store.AcquireLock] returns false
// immediately when another holder owns the name.
package cluster
