package marketsync

import "errors"

var (
	// Store errors.
	ErrNoStore           = errors.New("marketsync: no store configured")
	ErrStoreClosed       = errors.New("marketsync: store closed")
	ErrMigrationFailed   = errors.New("marketsync: migration failed")
	ErrSchemaUnavailable = errors.New("marketsync: required schema capability missing")

	// Not found errors.
	ErrJobNotFound    = errors.New("marketsync: job not found")
	ErrCycleNotFound  = errors.New("marketsync: ingestion cycle not found")
	ErrDLQNotFound    = errors.New("marketsync: dlq entry not found")
	ErrCronNotFound   = errors.New("marketsync: cron entry not found")
	ErrWorkerNotFound = errors.New("marketsync: worker not found")

	// Conflict errors.
	ErrDuplicateJob  = errors.New("marketsync: duplicate job for dedup key")
	ErrDuplicateCron = errors.New("marketsync: duplicate cron entry")

	// State errors.
	ErrInvalidState   = errors.New("marketsync: invalid state transition")
	ErrUnknownJobType = errors.New("marketsync: unknown job type")

	// Outcome signals.
	//
	// ErrPartialSuccess is returned (usually wrapped) by a job handler
	// that completed some but not all of its work. The worker marks the
	// job partial instead of failed and keeps the handler's result.
	ErrPartialSuccess = errors.New("marketsync: job completed partially")

	// Validation errors.
	ErrValidation           = errors.New("marketsync: invalid input")
	ErrPreconditionFailed   = errors.New("marketsync: business precondition failed")
	ErrHandlerNotRegistered = errors.New("marketsync: no handler registered for job type")
)
