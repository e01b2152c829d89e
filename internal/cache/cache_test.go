package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/skylens/skylens/internal/errors"
)

func setOf(handles ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(handles))
	for _, h := range handles {
		s[h] = struct{}{}
	}
	return s
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	store := NewMemoryStore()

	err := store.SetWithTTL(context.Background(), "k", []byte("v"), time.Minute)
	require.NoError(t, err)

	val, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)
}

func TestMemoryStore_MissOnAbsent(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, serrors.ErrCacheMiss)
}

func TestMemoryStore_MissAfterTTL(t *testing.T) {
	store := NewMemoryStore()

	err := store.SetWithTTL(context.Background(), "k", []byte("v"), 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	_, err = store.Get(context.Background(), "k")
	assert.ErrorIs(t, err, serrors.ErrCacheMiss)
}

func TestMemoryStore_Cleanup(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.SetWithTTL(context.Background(), "stale", []byte("v"), time.Nanosecond))
	require.NoError(t, store.SetWithTTL(context.Background(), "fresh", []byte("v"), time.Minute))

	time.Sleep(time.Millisecond)
	assert.Equal(t, 1, store.Cleanup())
}

func TestFollowsCache_RoundTrip(t *testing.T) {
	fc := NewFollowsCache(NewMemoryStore(), time.Minute, 16, zerolog.Nop())

	want := setOf("alice.bsky.social", "bob.bsky.social")
	require.NoError(t, fc.PutFollows(context.Background(), "carol.bsky.social", want))

	got, ok := fc.GetFollows(context.Background(), "carol.bsky.social")
	assert.True(t, ok)
	assert.Equal(t, want, got)
}

func TestFollowsCache_EmptySetIsCached(t *testing.T) {
	fc := NewFollowsCache(NewMemoryStore(), time.Minute, 16, zerolog.Nop())

	require.NoError(t, fc.PutFollows(context.Background(), "loner.bsky.social", setOf()))

	got, ok := fc.GetFollows(context.Background(), "loner.bsky.social")
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestFollowsCache_MissAfterTTL(t *testing.T) {
	store := NewMemoryStore()
	fc := NewFollowsCache(store, 10*time.Millisecond, 16, zerolog.Nop())

	require.NoError(t, fc.PutFollows(context.Background(), "carol.bsky.social", setOf("a")))

	// Bypass L1 by constructing a fresh cache over the same store.
	time.Sleep(20 * time.Millisecond)
	fc2 := NewFollowsCache(store, 10*time.Millisecond, 16, zerolog.Nop())
	_, ok := fc2.GetFollows(context.Background(), "carol.bsky.social")
	assert.False(t, ok)
}

func TestFollowsCache_L1ServesWithoutStore(t *testing.T) {
	store := NewMemoryStore()
	fc := NewFollowsCache(store, time.Minute, 16, zerolog.Nop())

	require.NoError(t, fc.PutFollows(context.Background(), "carol.bsky.social", setOf("a")))

	// Wipe the backing store; the L1 copy must still answer.
	store.mu.Lock()
	store.entries = map[string]memoryEntry{}
	store.mu.Unlock()

	got, ok := fc.GetFollows(context.Background(), "carol.bsky.social")
	assert.True(t, ok)
	assert.Equal(t, setOf("a"), got)
}

func TestFollowsCache_CorruptEntryIsMiss(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.SetWithTTL(context.Background(), FollowsKey("x"), []byte("{not json"), time.Minute))

	fc := NewFollowsCache(store, time.Minute, 16, zerolog.Nop())
	_, ok := fc.GetFollows(context.Background(), "x")
	assert.False(t, ok)
}

func TestFollowsCache_FollowerCount(t *testing.T) {
	fc := NewFollowsCache(NewMemoryStore(), time.Minute, 16, zerolog.Nop())

	_, ok := fc.GetFollowerCount(context.Background(), "carol.bsky.social")
	assert.False(t, ok)

	require.NoError(t, fc.PutFollowerCount(context.Background(), "carol.bsky.social", 1234))

	n, ok := fc.GetFollowerCount(context.Background(), "carol.bsky.social")
	assert.True(t, ok)
	assert.Equal(t, 1234, n)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "bluesky:follows:alice", FollowsKey("alice"))
	assert.Equal(t, "bluesky:followers:alice", FollowerCountKey("alice"))
}
