package ingest

import (
	"time"

	"github.com/george-itf/amazon-listing-helper-sub000/id"
)

// RawPayload is one fetched document for one listing from one source,
// captured during one ingestion cycle. Payloads are append-only: they
// are written once at capture time and never updated.
type RawPayload struct {
	ID            id.PayloadID `json:"id"`
	CycleID       id.CycleID   `json:"cycle_id"`
	EntityKind    string       `json:"entity_kind"`
	EntityID      string       `json:"entity_id"`
	MarketplaceID string       `json:"marketplace_id,omitempty"`
	Source        string       `json:"source"`
	Document      []byte       `json:"document"`
	CapturedAt    time.Time    `json:"captured_at"`
}
