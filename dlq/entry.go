package dlq

import (
	"time"

	marketsync "github.com/george-itf/amazon-listing-helper-sub000"
	"github.com/george-itf/amazon-listing-helper-sub000/id"
	"github.com/george-itf/amazon-listing-helper-sub000/job"
)

// Entry archives a job that failed permanently. Created once, read-only
// thereafter.
type Entry struct {
	ID          id.DLQID            `json:"id"`
	JobID       id.JobID            `json:"job_id"`
	JobType     job.Type            `json:"job_type"`
	Scope       job.Scope           `json:"scope"`
	Payload     []byte              `json:"payload,omitempty"`
	Failure     *marketsync.Failure `json:"failure"`
	Attempts    int                 `json:"attempts"`
	MaxAttempts int                 `json:"max_attempts"`
	FailedAt    time.Time           `json:"failed_at"`
	ReplayedAt  *time.Time          `json:"replayed_at,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}
