package analysis

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(time.Hour, nil, zerolog.Nop())
}

func TestRegistry_CreateAndGet(t *testing.T) {
	reg := newTestRegistry(t)

	sess := reg.Create("me.bsky.social")
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "me.bsky.social", sess.Handle)
	assert.Equal(t, PhaseSeeding, sess.Phase())

	found, ok := reg.Get(sess.ID)
	require.True(t, ok)
	assert.Same(t, sess, found)
}

func TestRegistry_UniqueIDs(t *testing.T) {
	reg := newTestRegistry(t)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		sess := reg.Create("me.bsky.social")
		assert.False(t, seen[sess.ID])
		seen[sess.ID] = true
	}
}

func TestRegistry_RemoveStopsWorker(t *testing.T) {
	reg := newTestRegistry(t)

	sess := reg.Create("me.bsky.social")
	sess.seed(set("a"))
	require.True(t, sess.Running())

	reg.Remove(sess.ID)
	assert.False(t, sess.Running())

	_, ok := reg.Get(sess.ID)
	assert.False(t, ok)
}

func TestRegistry_RemoveAbsentIsNoop(t *testing.T) {
	reg := newTestRegistry(t)
	reg.Remove("no-such-session")
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_SweepEvictsStale(t *testing.T) {
	reg := newTestRegistry(t)

	stale := reg.Create("stale.bsky.social")
	fresh := reg.Create("fresh.bsky.social")
	require.Equal(t, 2, reg.Len())

	// Pretend two sweep intervals pass without the stale session being
	// touched, then touch only the fresh one.
	future := time.Now().Add(2 * time.Hour)
	fresh.mu.Lock()
	fresh.lastAccess = future
	fresh.mu.Unlock()

	evicted := reg.sweep(future)
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, reg.Len())

	_, ok := reg.Get(stale.ID)
	assert.False(t, ok)
	_, ok = reg.Get(fresh.ID)
	assert.True(t, ok)
}

func TestRegistry_SweepLeavesActiveSessions(t *testing.T) {
	reg := newTestRegistry(t)
	reg.Create("active.bsky.social")

	assert.Equal(t, 0, reg.sweep(time.Now()))
	assert.Equal(t, 1, reg.Len())
}
