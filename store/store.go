package store

import (
	"context"

	"github.com/george-itf/amazon-listing-helper-sub000/cluster"
	"github.com/george-itf/amazon-listing-helper-sub000/cron"
	"github.com/george-itf/amazon-listing-helper-sub000/dlq"
	"github.com/george-itf/amazon-listing-helper-sub000/ingest"
	"github.com/george-itf/amazon-listing-helper-sub000/job"
)

// Store is the aggregate persistence interface. Each subsystem store is
// a composable interface; a single backend (postgres, memory) implements
// all of them.
type Store interface {
	job.Store
	ingest.Store
	cron.Store
	dlq.Store
	cluster.Store

	// Migrate runs all schema migrations and verifies the schema
	// manifest.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
