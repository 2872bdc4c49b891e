package cron

import "github.com/george-itf/amazon-listing-helper-sub000/job"

// Definition is a typed cron definition. T is the payload type
// (must be JSON-serializable).
type Definition[T any] struct {
	// Name is the unique identifier for this cron entry.
	Name string

	// Schedule is a cron expression (e.g., "*/5 * * * *" or "@every 30m").
	Schedule string

	// JobType is the job type to enqueue on each firing.
	JobType job.Type

	// Payload is the default payload to enqueue with the job.
	Payload T
}
