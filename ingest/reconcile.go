package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/george-itf/amazon-listing-helper-sub000/id"
)

// Counts is the aggregate outcome of one reconciliation pass.
type Counts struct {
	// Succeeded is the number of targets whose transform reported
	// success.
	Succeeded int

	// Failed is the number of targets that either failed to transform
	// or never produced a raw payload.
	Failed int

	// Missing lists the entity IDs that vanished: targeted, but no
	// source produced data for them.
	Missing []string
}

// Reconciler compares a cycle's frozen target list against the raw
// payloads that actually landed, flags vanishing listings as critical
// data-quality issues, and invokes the per-listing transform for
// everything that did land.
type Reconciler struct {
	payloads    PayloadStore
	issues      IssueStore
	transformer Transformer
	logger      *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(payloads PayloadStore, issues IssueStore, transformer Transformer, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		payloads:    payloads,
		issues:      issues,
		transformer: transformer,
		logger:      logger,
	}
}

// Reconcile processes the frozen target list for one cycle. Each
// target is handled independently: one listing's transform failure
// never prevents others from being processed or counted. The returned
// error is only non-nil when the payload listing itself fails, i.e.
// reconciliation could not start at all.
func (r *Reconciler) Reconcile(ctx context.Context, cycleID id.CycleID, targets []Target) (Counts, error) {
	payloads, err := r.payloads.ListPayloadsByCycle(ctx, cycleID)
	if err != nil {
		return Counts{}, fmt.Errorf("list payloads for cycle %s: %w", cycleID, err)
	}

	// Group documents by listing, then by source.
	bySource := make(map[string]map[string][]byte)
	for _, p := range payloads {
		docs, ok := bySource[p.EntityID]
		if !ok {
			docs = make(map[string][]byte)
			bySource[p.EntityID] = docs
		}
		docs[p.Source] = p.Document
	}

	var counts Counts
	for _, target := range targets {
		docs, landed := bySource[target.EntityID]
		if !landed {
			counts.Failed++
			counts.Missing = append(counts.Missing, target.EntityID)
			r.recordVanished(ctx, cycleID, target)
			continue
		}

		ok, transformErr := r.transform(ctx, target, cycleID, docs)
		if transformErr != nil {
			counts.Failed++
			r.logger.Error("listing transform error",
				slog.String("cycle_id", cycleID.String()),
				slog.String("entity_id", target.EntityID),
				slog.String("error", transformErr.Error()),
			)
			continue
		}
		if !ok {
			counts.Failed++
			continue
		}
		counts.Succeeded++
	}

	return counts, nil
}

// transform invokes the external transform collaborator with panic
// containment, so a panicking transform counts as that listing's
// failure instead of unwinding the cycle.
func (r *Reconciler) transform(ctx context.Context, target Target, cycleID id.CycleID, docs map[string][]byte) (ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			err = fmt.Errorf("transform panic: %v", rec)
		}
	}()
	return r.transformer.Transform(ctx, target, cycleID, docs)
}

// recordVanished files the critical DQ issue for a listing that was
// targeted but produced no data. An issue-store failure is logged and
// swallowed: visibility must not break the cycle.
func (r *Reconciler) recordVanished(ctx context.Context, cycleID id.CycleID, target Target) {
	issue := &DQIssue{
		ID:         id.NewIssueID(),
		CycleID:    cycleID,
		EntityKind: target.EntityKind,
		EntityID:   target.EntityID,
		Severity:   IssueCritical,
		Kind:       IssueKindDataNeverArrived,
		Detail:     fmt.Sprintf("listing %s was targeted by cycle %s but no source returned data", target.EntityID, cycleID),
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.issues.PutDQIssue(ctx, issue); err != nil {
		r.logger.Warn("record dq issue error",
			slog.String("cycle_id", cycleID.String()),
			slog.String("entity_id", target.EntityID),
			slog.String("error", err.Error()),
		)
	}
}
