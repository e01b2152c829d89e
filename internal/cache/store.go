// Package cache provides the TTL-keyed cache of Bluesky follow sets and
// follower counts that fronts the public graph API.
//
// The engine only depends on the byte-level Store capability; RedisStore is
// the production backend and MemoryStore serves tests and development.
package cache

import (
	"context"
	"time"
)

// Key prefixes for the two cached payload kinds.
const (
	followsKeyPrefix   = "bluesky:follows:"
	followersKeyPrefix = "bluesky:followers:"
)

// FollowsKey returns the cache key for an actor's follow set.
func FollowsKey(actor string) string {
	return followsKeyPrefix + actor
}

// FollowerCountKey returns the cache key for an actor's follower count.
func FollowerCountKey(actor string) string {
	return followersKeyPrefix + actor
}

// Store is a TTL key-value store. Get returns errors.ErrCacheMiss when the
// key is absent or expired.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}
