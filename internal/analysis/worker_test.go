package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastWorkerConfig() WorkerConfig {
	return WorkerConfig{BatchSize: 10, MaxWorkers: 4, RoundDelay: time.Millisecond}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestWorker_SeedFailureEmptySet(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.setFollows("me.bsky.social") // zero follows

	sess := newSession("s", "me.bsky.social")
	w := NewWorker(sess, fetcher, fastWorkerConfig(), zerolog.Nop())
	w.Run(context.Background())

	assert.Equal(t, PhaseFailed, sess.Phase())
	assert.False(t, sess.Running())
}

func TestWorker_SeedFailureError(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.setFollows("me.bsky.social", "a")
	fetcher.failNext("me.bsky.social", 1)

	sess := newSession("s", "me.bsky.social")
	w := NewWorker(sess, fetcher, fastWorkerConfig(), zerolog.Nop())
	w.Run(context.Background())

	assert.Equal(t, PhaseFailed, sess.Phase())
}

func TestWorker_ExpandsAllFollows(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.setFollows("me.bsky.social", "a", "b", "c")
	fetcher.setFollows("a", "x", "y")
	fetcher.setFollows("b", "x", "y")
	fetcher.setFollows("c", "y")

	sess := newSession("s", "me.bsky.social")
	w := NewWorker(sess, fetcher, fastWorkerConfig(), zerolog.Nop())

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	waitFor(t, func() bool {
		processed, total := sess.Progress()
		return total == 3 && processed == 3
	})

	results := sess.ranked(0)
	require.Len(t, results, 2)
	assert.Equal(t, Result{Handle: "y", Count: 3}, results[0])
	assert.Equal(t, Result{Handle: "x", Count: 2}, results[1])

	// The loop keeps spinning after exhaustion until told to stop.
	assert.True(t, sess.Running())
	sess.stop()
	<-done
}

func TestWorker_RetriesFailedNeighbor(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.setFollows("me.bsky.social", "a", "b")
	fetcher.setFollows("a", "x")
	fetcher.setFollows("b", "y")
	fetcher.failNext("b", 1)

	sess := newSession("s", "me.bsky.social")
	w := NewWorker(sess, fetcher, fastWorkerConfig(), zerolog.Nop())

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	waitFor(t, func() bool {
		processed, _ := sess.Progress()
		return processed == 2
	})
	sess.stop()
	<-done

	// "b" failed once, stayed unprocessed, and was fetched again.
	assert.GreaterOrEqual(t, fetcher.fetchCount("b"), 2)
	assert.Equal(t, 1, sess.ranked(0)[0].Count)
}

func TestWorker_ProcessedSubsetOfFollows(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.setFollows("me.bsky.social", "a", "b")
	fetcher.setFollows("a", "b") // neighbors may follow each other
	fetcher.setFollows("b", "a")

	sess := newSession("s", "me.bsky.social")
	w := NewWorker(sess, fetcher, fastWorkerConfig(), zerolog.Nop())

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	waitFor(t, func() bool {
		processed, _ := sess.Progress()
		return processed == 2
	})
	sess.stop()
	<-done

	sess.mu.Lock()
	defer sess.mu.Unlock()
	for h := range sess.processed {
		_, inFollows := sess.yourFollows[h]
		assert.True(t, inFollows || h == sess.Handle)
	}
}

// gatedFetcher holds every fetch until gate is closed, to pin a worker in
// the seeding phase.
type gatedFetcher struct {
	*stubFetcher
	gate chan struct{}
}

func (f *gatedFetcher) FetchFollowSet(ctx context.Context, actor string, useCache bool) (map[string]struct{}, error) {
	select {
	case <-f.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return f.stubFetcher.FetchFollowSet(ctx, actor, useCache)
}

func TestWorker_RemovalDuringSeedStopsWorker(t *testing.T) {
	inner := newStubFetcher()
	inner.setFollows("me.bsky.social", "a")
	inner.setFollows("a", "x")
	fetcher := &gatedFetcher{stubFetcher: inner, gate: make(chan struct{})}

	reg := newTestRegistry(t)
	sess := reg.Create("me.bsky.social")
	w := NewWorker(sess, fetcher, fastWorkerConfig(), zerolog.Nop())

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	// Remove the session while the seed fetch is still blocked, then let
	// the fetch complete.
	reg.Remove(sess.ID)
	require.Equal(t, PhaseStopped, sess.Phase())
	close(fetcher.gate)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker kept running after session removal")
	}
	assert.Equal(t, PhaseStopped, sess.Phase())
}

func TestWorker_ContextCancelStopsLoop(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.setFollows("me.bsky.social", "a")
	fetcher.setFollows("a", "x")

	sess := newSession("s", "me.bsky.social")
	w := NewWorker(sess, fetcher, fastWorkerConfig(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	waitFor(t, sess.Running)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on context cancellation")
	}
	assert.False(t, sess.Running())
}
