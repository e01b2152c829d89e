// Package analysis implements the incremental follows-of-follows crawl:
// per-session aggregation state, the bounded-concurrency expansion worker,
// the session registry with idle expiry, and the snapshot stream pushed to
// the transport layer.
package analysis

import (
	"sort"
	"sync"
	"time"

	"github.com/skylens/skylens/internal/bsky"
)

// Snapshot policy: entries must be seen by more than snapshotMinCount of the
// user's follows, and at most snapshotMaxResults entries are returned.
const (
	snapshotMinCount   = 5
	snapshotMaxResults = 1000
)

// Phase is the lifecycle state of a session's expansion worker.
type Phase int32

const (
	// PhaseSeeding: fetching the target's own follow set.
	PhaseSeeding Phase = iota
	// PhaseRunning: the expansion loop is folding neighbor follow sets.
	PhaseRunning
	// PhaseStopped: the session was removed and the loop told to exit.
	PhaseStopped
	// PhaseFailed: the seed fetch failed or the loop hit an unrecoverable error.
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseSeeding:
		return "seeding"
	case PhaseRunning:
		return "running"
	case PhaseStopped:
		return "stopped"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// Result is one ranked entry of a snapshot.
type Result struct {
	Handle    string `json:"handle"`
	Count     int    `json:"count"`
	Followers int    `json:"followers,omitempty"`
}

// Session holds one analysis run's mutable aggregation state. All fields
// behind mu are only observed fully consistent: RecordExpansion and Snapshot
// are mutually exclusive, so a reader never sees a partially applied fold.
type Session struct {
	ID     string
	Handle string

	mu          sync.Mutex
	yourFollows map[string]struct{}
	counts      map[string]int
	order       []string // first-insertion order of counts keys, for stable ranking
	processed   map[string]struct{}
	phase       Phase
	lastAccess  time.Time
}

func newSession(id, handle string) *Session {
	return &Session{
		ID:          id,
		Handle:      handle,
		yourFollows: make(map[string]struct{}),
		counts:      make(map[string]int),
		processed:   make(map[string]struct{}),
		phase:       PhaseSeeding,
		lastAccess:  time.Now(),
	}
}

// seed stores the target's own follow set and starts the running phase.
// Written once; read-only afterwards. A session stopped or failed while the
// seed fetch was in flight keeps its terminal phase, so removal during
// seeding still ends the worker.
func (s *Session) seed(follows map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.yourFollows = follows
	if s.phase == PhaseSeeding {
		s.phase = PhaseRunning
	}
	s.lastAccess = time.Now()
}

// RecordExpansion folds one expanded account's follow set into the counter
// and marks the account processed.
func (s *Session) RecordExpansion(handle string, follows map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for h := range follows {
		if _, seen := s.counts[h]; !seen {
			s.order = append(s.order, h)
		}
		s.counts[h]++
	}
	s.processed[handle] = struct{}{}
	s.lastAccess = time.Now()
}

// UnprocessedBatch returns up to limit handles from yourFollows that have
// not been expanded yet. Order is arbitrary; every member of yourFollows is
// eventually processed.
func (s *Session) UnprocessedBatch(limit int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make([]string, 0, limit)
	for h := range s.yourFollows {
		if _, done := s.processed[h]; done {
			continue
		}
		batch = append(batch, h)
		if len(batch) >= limit {
			break
		}
	}
	return batch
}

// Snapshot produces the ranked, filtered result list: descending count,
// ties in first-insertion order, excluding the user's own follows, the
// invalid-handle sentinel, and low-signal entries.
func (s *Session) Snapshot() []Result {
	return s.ranked(snapshotMinCount)
}

func (s *Session) ranked(minCount int) []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccess = time.Now()

	results := make([]Result, 0, len(s.order))
	for _, h := range s.order {
		if _, own := s.yourFollows[h]; own {
			continue
		}
		if h == bsky.InvalidHandle {
			continue
		}
		if c := s.counts[h]; c > minCount {
			results = append(results, Result{Handle: h, Count: c})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Count > results[j].Count
	})

	if len(results) > snapshotMaxResults {
		results = results[:snapshotMaxResults]
	}
	return results
}

// Progress returns how many of the target's follows have been expanded.
func (s *Session) Progress() (processed, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccess = time.Now()
	return len(s.processed), len(s.yourFollows)
}

// Phase returns the worker lifecycle state.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Running reports whether the expansion loop should keep going.
func (s *Session) Running() bool {
	return s.Phase() == PhaseRunning
}

// stop tells the expansion loop to exit. A failed session stays failed.
func (s *Session) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseFailed {
		s.phase = PhaseStopped
	}
}

// fail marks the session's worker as terminally failed.
func (s *Session) fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseFailed
}

// LastAccess returns when the session's state was last read or written.
func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}
