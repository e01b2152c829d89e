package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skylens/skylens/internal/metrics"
)

// Registry is the process-wide map of live analysis sessions. The registry
// lock only guards the map structure; each session's fields are guarded by
// its own lock, so concurrent sessions never contend with each other.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	sweepInterval time.Duration
	metrics       *metrics.Metrics
	logger        zerolog.Logger
}

// NewRegistry creates a session registry. Sessions idle for longer than
// sweepInterval are evicted by the sweep loop.
func NewRegistry(sweepInterval time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Registry {
	return &Registry{
		sessions:      make(map[string]*Session),
		sweepInterval: sweepInterval,
		metrics:       m,
		logger:        logger.With().Str("component", "session_registry").Logger(),
	}
}

// Create registers a new session for the given handle and returns it.
// Session ids are unique for the process lifetime and never reused.
func (r *Registry) Create(handle string) *Session {
	sess := newSession(uuid.New().String(), handle)

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SessionStarted()
	}
	r.logger.Info().Str("session_id", sess.ID).Str("handle", handle).Msg("session created")
	return sess
}

// Get returns the session with the given id, or false if absent or removed.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Remove stops the session's worker loop and deletes the entry. This is the
// only way a worker is told to stop externally.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		sess.stop()
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if r.metrics != nil {
		r.metrics.SessionEnded()
	}
	r.logger.Info().Str("session_id", id).Msg("session removed")
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// StartSweeper launches the periodic eviction of stale sessions.
// Cancel ctx to stop it.
func (r *Registry) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.sweep(time.Now()); n > 0 {
					r.logger.Info().Int("evicted", n).Msg("swept stale sessions")
				}
			}
		}
	}()
}

// sweep removes every session whose last access predates now minus the
// sweep interval, and returns how many were evicted.
func (r *Registry) sweep(now time.Time) int {
	cutoff := now.Add(-r.sweepInterval)

	r.mu.Lock()
	var stale []string
	for id, sess := range r.sessions {
		if sess.LastAccess().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		r.Remove(id)
	}
	return len(stale)
}
