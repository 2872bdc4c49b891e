package ingest

import (
	"time"

	"github.com/george-itf/amazon-listing-helper-sub000/id"
)

// IssueSeverity grades a data-quality issue.
type IssueSeverity string

const (
	IssueInfo     IssueSeverity = "info"
	IssueWarning  IssueSeverity = "warning"
	IssueCritical IssueSeverity = "critical"
)

// IssueKindDataNeverArrived marks a listing that was targeted by a
// cycle but produced no raw payload from any source.
const IssueKindDataNeverArrived = "data-never-arrived"

// DQIssue records a detected data problem, tied to the cycle that
// detected it. Issues are visible independently of whether the cycle
// itself succeeded.
type DQIssue struct {
	ID         id.IssueID    `json:"id"`
	CycleID    id.CycleID    `json:"cycle_id"`
	EntityKind string        `json:"entity_kind"`
	EntityID   string        `json:"entity_id"`
	Severity   IssueSeverity `json:"severity"`
	Kind       string        `json:"kind"`
	Detail     string        `json:"detail,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}
