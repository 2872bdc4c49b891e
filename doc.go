// Package marketsync is the background-processing core of the listing
// sync platform: a durable job queue execution engine and a scheduled,
// rate-limited, multi-source ingestion pipeline that refreshes external
// market data for tracked product identifiers.
//
// It is designed as a library, not a service. The embedding application
// configures a store, registers job handlers and source fetchers as
// ordinary Go functions, and starts the engine.
//
// # Architecture
//
// Each subsystem (job, dlq, cron, cluster, ingest) defines its own store
// interface; a single backend implements all of them. The only
// cross-process synchronization primitives are the job store's atomic
// claim transition and the cluster store's named locks — everything else
// coordinates through persisted state.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package marketsync
