package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	serrors "github.com/skylens/skylens/internal/errors"
	"github.com/skylens/skylens/lru"
)

// l1TTL bounds how long a decoded follow set may be served from the
// process-local layer without consulting Redis. Kept short so L1 entries
// cannot outlive the Redis TTL by much.
const l1TTL = 5 * time.Minute

type l1Entry struct {
	follows   map[string]struct{}
	expiresAt time.Time
}

// FollowsCache is the typed cache of follow sets and follower counts.
// Redis (or any Store) is the authoritative layer; a small LRU in front of it
// avoids re-decoding hot follow sets that many sessions reference.
type FollowsCache struct {
	store  Store
	ttl    time.Duration
	l1     *lru.Cache[string, l1Entry]
	logger zerolog.Logger
}

// NewFollowsCache creates a follows cache with the given TTL and L1 capacity.
func NewFollowsCache(store Store, ttl time.Duration, lruSize int, logger zerolog.Logger) *FollowsCache {
	if lruSize < 1 {
		lruSize = 1
	}
	return &FollowsCache{
		store:  store,
		ttl:    ttl,
		l1:     lru.New[string, l1Entry](lruSize),
		logger: logger.With().Str("component", "follows_cache").Logger(),
	}
}

// GetFollows returns the cached follow set for actor, or false on a miss.
func (c *FollowsCache) GetFollows(ctx context.Context, actor string) (map[string]struct{}, bool) {
	key := FollowsKey(actor)

	if e, ok := c.l1.Get(key); ok && time.Now().Before(e.expiresAt) {
		return e.follows, true
	}

	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, serrors.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("actor", actor).Msg("cache read failed")
		}
		return nil, false
	}

	var handles []string
	if err := json.Unmarshal(raw, &handles); err != nil {
		c.logger.Warn().Err(err).Str("actor", actor).Msg("corrupt cache entry, treating as miss")
		return nil, false
	}

	follows := make(map[string]struct{}, len(handles))
	for _, h := range handles {
		follows[h] = struct{}{}
	}
	c.l1.Put(key, l1Entry{follows: follows, expiresAt: time.Now().Add(l1TTL)})
	return follows, true
}

// PutFollows stores a follow set (empty sets included) under the cache TTL.
func (c *FollowsCache) PutFollows(ctx context.Context, actor string, follows map[string]struct{}) error {
	handles := make([]string, 0, len(follows))
	for h := range follows {
		handles = append(handles, h)
	}
	sort.Strings(handles)

	raw, err := json.Marshal(handles)
	if err != nil {
		return fmt.Errorf("encoding follow set for %s: %w", actor, err)
	}

	key := FollowsKey(actor)
	if err := c.store.SetWithTTL(ctx, key, raw, c.ttl); err != nil {
		return err
	}
	c.l1.Put(key, l1Entry{follows: follows, expiresAt: time.Now().Add(l1TTL)})
	return nil
}

// GetFollowerCount returns the cached follower count for actor, or false on a miss.
func (c *FollowsCache) GetFollowerCount(ctx context.Context, actor string) (int, bool) {
	raw, err := c.store.Get(ctx, FollowerCountKey(actor))
	if err != nil {
		if !errors.Is(err, serrors.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("actor", actor).Msg("cache read failed")
		}
		return 0, false
	}

	n, err := strconv.Atoi(string(raw))
	if err != nil {
		c.logger.Warn().Err(err).Str("actor", actor).Msg("corrupt follower count entry, treating as miss")
		return 0, false
	}
	return n, true
}

// PutFollowerCount stores a follower count under the cache TTL.
func (c *FollowsCache) PutFollowerCount(ctx context.Context, actor string, count int) error {
	return c.store.SetWithTTL(ctx, FollowerCountKey(actor), []byte(strconv.Itoa(count)), c.ttl)
}
