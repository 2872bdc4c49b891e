// Package redis implements the fleet-coordination store on Redis: the
// worker registry lives in Hashes and named locks ride on key TTLs, so
// lock expiry is enforced by Redis itself rather than by readers
// checking timestamps. Durable state (jobs, cycles, payloads, DLQ,
// cron) belongs in the postgres store; this backend exists for
// deployments that want coordination off the primary database.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/george-itf/amazon-listing-helper-sub000/cluster"
)

// Compile-time interface check.
var _ cluster.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements cluster.Store backed by Redis.
type Store struct {
	client redis.Cmdable
	logger *slog.Logger
}

// New creates a new Redis-backed coordination store. The caller owns
// the Redis client lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
