package analysis

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Fetcher is the graph-fetch capability the engine depends on.
// Implemented by bsky.Client.
//
// FetchFollowSet returns an error only when nothing could be fetched at all,
// such as context cancellation. Per-page failures mid-crawl surface as a
// success carrying the partial set, which is also what gets cached. The
// worker leaves an errored item unprocessed and retries it on a later round.
type Fetcher interface {
	FetchFollowSet(ctx context.Context, actor string, useCache bool) (map[string]struct{}, error)
	FetchFollowerCount(ctx context.Context, actor string) int
}

// WorkerConfig bounds one session's expansion loop.
type WorkerConfig struct {
	// BatchSize is how many unexpanded follows are taken per round.
	BatchSize int
	// MaxWorkers bounds the concurrent fetches within one round.
	MaxWorkers int
	// RoundDelay is the yield between rounds, so the loop does not spin
	// once the unprocessed set is empty.
	RoundDelay time.Duration
}

// Worker drives one session from seed to its externally-triggered end.
//
// The loop has no terminal condition on graph exhaustion: once all of the
// user's follows are processed each round is a cheap no-op scan, and
// termination is left to session removal or expiry. This keeps late
// re-checks possible without extra states.
type Worker struct {
	sess    *Session
	fetcher Fetcher
	cfg     WorkerConfig
	logger  zerolog.Logger
}

// NewWorker creates the expansion worker for one session.
func NewWorker(sess *Session, fetcher Fetcher, cfg WorkerConfig, logger zerolog.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 40
	}
	if cfg.RoundDelay <= 0 {
		cfg.RoundDelay = 100 * time.Millisecond
	}
	return &Worker{
		sess:    sess,
		fetcher: fetcher,
		cfg:     cfg,
		logger: logger.With().
			Str("component", "expansion_worker").
			Str("session_id", sess.ID).
			Str("handle", sess.Handle).
			Logger(),
	}
}

// Run executes the seed-then-expand loop. Blocks until the session is
// stopped, fails, or ctx is cancelled; intended to run on its own goroutine.
func (w *Worker) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().Interface("panic", r).Msg("expansion loop panicked")
			w.sess.fail()
		}
	}()

	// Seed bypasses the cache: the user's own graph should be current.
	seed, err := w.fetcher.FetchFollowSet(ctx, w.sess.Handle, false)
	if err != nil || len(seed) == 0 {
		w.logger.Warn().Err(err).Msg("seed fetch failed or empty, session will not start")
		w.sess.fail()
		return
	}
	w.sess.seed(seed)
	w.logger.Info().Int("follows", len(seed)).Msg("session seeded")

	for w.sess.Running() {
		w.expandRound(ctx)

		select {
		case <-ctx.Done():
			w.sess.stop()
			return
		case <-time.After(w.cfg.RoundDelay):
		}
	}
}

// expandRound fetches one batch of unexpanded follows concurrently and folds
// each completed fetch into the session. A per-item failure is logged and
// the item stays unprocessed, so it is retried on a later round.
func (w *Worker) expandRound(ctx context.Context) {
	batch := w.sess.UnprocessedBatch(w.cfg.BatchSize)
	if len(batch) == 0 {
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(w.cfg.MaxWorkers)

	for _, handle := range batch {
		handle := handle
		g.Go(func() error {
			follows, err := w.fetcher.FetchFollowSet(ctx, handle, true)
			if err != nil {
				w.logger.Warn().Err(err).Str("neighbor", handle).Msg("neighbor fetch failed, will retry")
				return nil
			}
			w.sess.RecordExpansion(handle, follows)
			return nil
		})
	}

	// The whole batch joins before the next round starts.
	_ = g.Wait()
}
