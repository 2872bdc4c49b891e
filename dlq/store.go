package dlq

import (
	"context"
	"time"

	"github.com/george-itf/amazon-listing-helper-sub000/id"
	"github.com/george-itf/amazon-listing-helper-sub000/job"
)

// ListOpts controls pagination and filtering for DLQ list queries.
type ListOpts struct {
	// JobType filters by original job type. Empty means all types.
	JobType job.Type
	// Limit is the maximum number of entries to return. Zero means no limit.
	Limit int
	// Offset is the number of entries to skip.
	Offset int
}

// Store defines the persistence contract for the dead letter archive.
type Store interface {
	// PushDLQ adds a terminally failed job entry to the archive.
	PushDLQ(ctx context.Context, entry *Entry) error

	// ListDLQ returns entries matching the given options, oldest first.
	ListDLQ(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// GetDLQ retrieves an entry by ID.
	GetDLQ(ctx context.Context, entryID id.DLQID) (*Entry, error)

	// ReplayDLQ marks an entry as replayed. The re-enqueue itself is
	// handled at the service layer.
	ReplayDLQ(ctx context.Context, entryID id.DLQID) error

	// PurgeDLQ removes entries with FailedAt before the given time.
	// Returns the number of entries removed.
	PurgeDLQ(ctx context.Context, before time.Time) (int64, error)

	// CountDLQ returns the total number of entries in the archive.
	CountDLQ(ctx context.Context) (int64, error)
}
