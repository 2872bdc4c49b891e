package cron

import (
	"time"

	marketsync "github.com/george-itf/amazon-listing-helper-sub000"
	"github.com/george-itf/amazon-listing-helper-sub000/id"
	"github.com/george-itf/amazon-listing-helper-sub000/job"
)

// Entry represents a scheduled recurring job.
type Entry struct {
	marketsync.Entity

	ID          id.CronID  `json:"id"`
	Name        string     `json:"name"`
	Schedule    string     `json:"schedule"`
	JobType     job.Type   `json:"job_type"`
	Payload     []byte     `json:"payload,omitempty"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
	LockedBy    string     `json:"locked_by,omitempty"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	Enabled     bool       `json:"enabled"`
}
