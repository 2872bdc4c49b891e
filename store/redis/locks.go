package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/george-itf/amazon-listing-helper-sub000/cluster"
	"github.com/george-itf/amazon-listing-helper-sub000/id"
)

// Named locks are Hashes whose lifetime IS the lock: PEXPIRE enforces
// the TTL, so an expired lock simply stops existing and "free" needs no
// timestamp comparison. All three transitions run as Lua so the
// holder check and the write are one atomic step.

// acquireLockScript takes the lock when it is free or already held by
// this worker.
var acquireLockScript = goredis.NewScript(`
local holder = redis.call('HGET', KEYS[1], 'holder_id')
if holder == false or holder == ARGV[1] then
	redis.call('HSET', KEYS[1], 'holder_id', ARGV[1], 'acquired_at', ARGV[2])
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
	return 1
end
return 0
`)

// renewLockScript extends the TTL only for the current holder.
var renewLockScript = goredis.NewScript(`
if redis.call('HGET', KEYS[1], 'holder_id') == ARGV[1] then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
	return 1
end
return 0
`)

// releaseLockScript deletes the lock only for the current holder.
var releaseLockScript = goredis.NewScript(`
if redis.call('HGET', KEYS[1], 'holder_id') == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// AcquireLock attempts to take the named lock for workerID. An expired
// lock counts as free. Never blocks waiting for the current holder.
func (s *Store) AcquireLock(ctx context.Context, name string, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	res, err := acquireLockScript.Run(ctx, s.client, []string{lockKey(name)},
		workerID.String(),
		time.Now().UTC().Format(time.RFC3339Nano),
		ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("marketsync/redis: acquire lock %q: %w", name, err)
	}
	return res == 1, nil
}

// RenewLock extends the TTL of a lock the worker already holds.
func (s *Store) RenewLock(ctx context.Context, name string, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	res, err := renewLockScript.Run(ctx, s.client, []string{lockKey(name)},
		workerID.String(),
		ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("marketsync/redis: renew lock %q: %w", name, err)
	}
	return res == 1, nil
}

// ReleaseLock frees the named lock if workerID is the holder. Releasing
// a lock held by someone else is a no-op.
func (s *Store) ReleaseLock(ctx context.Context, name string, workerID id.WorkerID) error {
	err := releaseLockScript.Run(ctx, s.client, []string{lockKey(name)},
		workerID.String(),
	).Err()
	if err != nil {
		return fmt.Errorf("marketsync/redis: release lock %q: %w", name, err)
	}
	return nil
}

// GetLock returns the current holder of the named lock, or nil if the
// lock is free or expired.
func (s *Store) GetLock(ctx context.Context, name string) (*cluster.Lock, error) {
	key := lockKey(name)

	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("marketsync/redis: get lock %q: %w", name, err)
	}
	if len(vals) == 0 {
		return nil, nil
	}

	holder, parseErr := id.ParseWorkerID(vals["holder_id"])
	if parseErr != nil {
		return nil, fmt.Errorf("marketsync/redis: parse lock holder: %w", parseErr)
	}

	acquiredAt, _ := time.Parse(time.RFC3339Nano, vals["acquired_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	lock := &cluster.Lock{
		Name:       name,
		HolderID:   holder,
		AcquiredAt: acquiredAt,
	}

	// Key TTL is the lock TTL.
	pttl, ttlErr := s.client.PTTL(ctx, key).Result()
	if ttlErr == nil && pttl > 0 {
		lock.ExpiresAt = time.Now().UTC().Add(pttl)
	}

	return lock, nil
}
