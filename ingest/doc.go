// Package ingest implements the scheduled listing-data ingestion
// pipeline: resolve the tracked listing set, fetch from every
// configured marketplace data source in parallel through per-source
// rate limits, persist each fetched document as an immutable raw
// payload, then reconcile what landed against what was targeted.
//
// One run of the pipeline is an ingestion [Cycle]. Cycles are
// single-flight across the whole fleet: [Orchestrator.RunCycle] takes a
// named cluster lock and returns a SKIPPED cycle immediately when
// another instance is mid-run. The target listing set is frozen at
// cycle start; listings tracked or untracked afterwards wait for the
// next cycle.
//
// Listings that were targeted but produced no raw payload from any
// source ("vanishing" listings) are recorded as critical data-quality
// issues by the [Reconciler], independent of the cycle's final status.
package ingest
