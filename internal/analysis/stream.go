package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/skylens/skylens/internal/metrics"
)

// Event is one server-push message relayed to the transport layer.
// An empty Name is a keepalive: no payload, sent so the transport can probe
// the connection while a slow seed produces no updates.
type Event struct {
	Name string // "update", "error", or "" for a keepalive
	Data any
}

// UpdatePayload is the data of an "update" event.
type UpdatePayload struct {
	Results        []Result `json:"results"`
	Timestamp      float64  `json:"timestamp"`
	ProcessedCount int      `json:"processed_count"`
	TotalCount     int      `json:"total_count"`
}

// ErrorPayload is the data of the single terminal "error" event.
type ErrorPayload struct {
	Error string `json:"error"`
}

// PushFunc delivers one event to the consumer. A non-nil return means the
// consumer disconnected; the stream stops and the session is removed.
type PushFunc func(Event) error

// Config holds the engine's crawl and streaming parameters.
type Config struct {
	BatchSize      int
	MaxWorkers     int
	RoundDelay     time.Duration
	StreamInterval time.Duration

	// EnrichFollowers enables the best-effort follower-count pass over the
	// truncated snapshot, bounded to EnrichWorkers concurrent lookups.
	EnrichFollowers bool
	EnrichWorkers   int
}

// Engine owns the crawl machinery: it creates sessions, runs their expansion
// workers, and streams periodic snapshots to consumers.
type Engine struct {
	cfg      Config
	registry *Registry
	fetcher  Fetcher
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	baseCtx context.Context
}

// NewEngine creates the analysis engine.
func NewEngine(cfg Config, registry *Registry, fetcher Fetcher, m *metrics.Metrics, logger zerolog.Logger) *Engine {
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = 5 * time.Second
	}
	if cfg.EnrichWorkers <= 0 {
		cfg.EnrichWorkers = 8
	}
	return &Engine{
		cfg:      cfg,
		registry: registry,
		fetcher:  fetcher,
		metrics:  m,
		logger:   logger.With().Str("component", "engine").Logger(),
		baseCtx:  context.Background(),
	}
}

// Start binds worker goroutines to ctx and launches the registry sweeper.
// Cancelling ctx stops the sweeper and all expansion loops.
func (e *Engine) Start(ctx context.Context) {
	e.baseCtx = ctx
	e.registry.StartSweeper(ctx)
}

// CreateAndStream creates a session for handle, starts its expansion worker
// in the background, and pushes snapshot events through push until the
// session ends or the consumer disconnects. The session is always removed
// on return; workers learn about removal on their next round.
func (e *Engine) CreateAndStream(ctx context.Context, handle string, push PushFunc) error {
	sess := e.registry.Create(handle)
	worker := NewWorker(sess, e.fetcher, WorkerConfig{
		BatchSize:  e.cfg.BatchSize,
		MaxWorkers: e.cfg.MaxWorkers,
		RoundDelay: e.cfg.RoundDelay,
	}, e.logger)

	// The worker outlives this request's context: cancellation happens
	// through session removal, checked once per round.
	go worker.Run(e.baseCtx)

	return e.stream(ctx, sess.ID, push)
}

// stream relays snapshots on a fixed cadence. It stops when the session is
// gone, its worker has stopped or failed, the consumer disconnects, or ctx
// ends. Any unexpected internal error surfaces as a single error event.
func (e *Engine) stream(ctx context.Context, id string, push PushFunc) error {
	defer e.registry.Remove(id)

	ticker := time.NewTicker(e.cfg.StreamInterval)
	defer ticker.Stop()

	for {
		sess, ok := e.registry.Get(id)
		if !ok {
			return nil
		}

		switch sess.Phase() {
		case PhaseFailed, PhaseStopped:
			// Seed failure and external stop both end the stream without
			// an update event.
			return nil
		case PhaseSeeding:
			// No snapshot to send yet; a keepalive still goes out so a
			// consumer that left during a slow seed is noticed this tick.
			if err := push(Event{}); err != nil {
				e.logger.Debug().Str("session_id", id).Msg("consumer disconnected during seeding")
				return nil
			}
		case PhaseRunning:
			payload, err := e.buildUpdate(ctx, sess)
			if err != nil {
				e.recordEvent("error")
				_ = push(Event{Name: "error", Data: ErrorPayload{Error: err.Error()}})
				return err
			}
			if err := push(Event{Name: "update", Data: payload}); err != nil {
				e.logger.Debug().Str("session_id", id).Msg("consumer disconnected")
				return nil
			}
			e.recordEvent("update")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// buildUpdate assembles one snapshot payload, recovering from panics so a
// broken tick degrades to a terminal error event instead of a silent hang.
func (e *Engine) buildUpdate(ctx context.Context, sess *Session) (payload UpdatePayload, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("building snapshot: %v", r)
		}
	}()

	start := time.Now()
	results := sess.Snapshot()
	processed, total := sess.Progress()

	if e.cfg.EnrichFollowers {
		e.enrich(ctx, results)
	}
	if e.metrics != nil {
		e.metrics.ObserveSnapshot(time.Since(start).Seconds())
	}

	return UpdatePayload{
		Results:        results,
		Timestamp:      float64(time.Now().UnixMilli()) / 1000,
		ProcessedCount: processed,
		TotalCount:     total,
	}, nil
}

// enrich fills in follower counts for the truncated result list, bounded to
// a small pool. Failures leave the count at 0 and never drop an entry.
func (e *Engine) enrich(ctx context.Context, results []Result) {
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.EnrichWorkers)

	for i := range results {
		i := i
		g.Go(func() error {
			results[i].Followers = e.fetcher.FetchFollowerCount(ctx, results[i].Handle)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) recordEvent(eventType string) {
	if e.metrics != nil {
		e.metrics.RecordStreamEvent(eventType)
	}
}
