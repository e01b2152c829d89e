package analysis

import (
	"context"
	"sync"

	serrors "github.com/skylens/skylens/internal/errors"
)

// stubFetcher is an in-memory Fetcher with scriptable per-actor failures.
type stubFetcher struct {
	mu        sync.Mutex
	follows   map[string][]string
	followers map[string]int
	failures  map[string]int // remaining forced failures per actor
	fetches   map[string]int
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		follows:   make(map[string][]string),
		followers: make(map[string]int),
		failures:  make(map[string]int),
		fetches:   make(map[string]int),
	}
}

func (f *stubFetcher) setFollows(actor string, follows ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.follows[actor] = follows
}

func (f *stubFetcher) failNext(actor string, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[actor] = times
}

func (f *stubFetcher) fetchCount(actor string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[actor]
}

func (f *stubFetcher) FetchFollowSet(_ context.Context, actor string, _ bool) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetches[actor]++
	if f.failures[actor] > 0 {
		f.failures[actor]--
		return nil, serrors.NewAPIError("bluesky", 502, "forced failure for "+actor)
	}

	set := make(map[string]struct{}, len(f.follows[actor]))
	for _, h := range f.follows[actor] {
		set[h] = struct{}{}
	}
	return set, nil
}

func (f *stubFetcher) FetchFollowerCount(_ context.Context, actor string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.followers[actor]
}
