// Package bsky fetches follow graphs from the public Bluesky AppView.
//
// Every page request passes through a shared rate limiter, and complete
// follow sets are cached with a TTL so that accounts referenced by many
// sessions are not re-crawled. Page failures degrade to partial results
// rather than propagating: the crawl prefers an incomplete answer over
// blocking on a broken account.
package bsky

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/skylens/skylens/internal/cache"
	serrors "github.com/skylens/skylens/internal/errors"
	"github.com/skylens/skylens/internal/metrics"
)

const (
	getFollowsPath = "/xrpc/app.bsky.graph.getFollows"
	getProfilePath = "/xrpc/app.bsky.actor.getProfile"
)

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds graph client configuration.
type ClientConfig struct {
	BaseURL      string
	PageLimit    int
	RateLimitRPS int
}

// Client fetches follow sets and follower counts for Bluesky accounts.
// Safe for concurrent use by every worker across every session.
type Client struct {
	cfg        ClientConfig
	httpClient HTTPClient
	limiter    *rate.Limiter
	cache      *cache.FollowsCache
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewClient creates a graph client. The rate limiter is shared across all
// callers: burst of 1, so calls above the configured rate always block.
func NewClient(cfg ClientConfig, fc *cache.FollowsCache, m *metrics.Metrics, logger zerolog.Logger) *Client {
	if cfg.PageLimit <= 0 || cfg.PageLimit > 100 {
		cfg.PageLimit = 100
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 3000
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1),
		cache:      fc,
		metrics:    m,
		logger:     logger.With().Str("component", "bsky_client").Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(hc HTTPClient) {
	c.httpClient = hc
}

// FetchFollowSet returns the complete set of handles the actor follows.
//
// With useCache, a fresh cache entry short-circuits the network entirely.
// Otherwise the client pages through getFollows until a page carries no
// cursor or fails terminally; on a failed page the partial set accumulated
// so far is kept. The result, including the empty set, is always written
// back to the cache so unreachable accounts are not re-fetched on every
// reference.
func (c *Client) FetchFollowSet(ctx context.Context, actor string, useCache bool) (map[string]struct{}, error) {
	if useCache {
		if follows, ok := c.cache.GetFollows(ctx, actor); ok {
			c.recordCache("hit")
			c.recordFetch("cache", "ok")
			return follows, nil
		}
		c.recordCache("miss")
	}

	follows := make(map[string]struct{})
	cursor := ""

	for {
		page, err := c.fetchFollowsPage(ctx, actor, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn().Err(err).Str("actor", actor).Msg("page fetch failed, keeping partial follow set")
			c.recordFetch("api", "error")
			break
		}
		for _, f := range page.Follows {
			follows[f.Handle] = struct{}{}
		}
		if page.Cursor == "" {
			c.recordFetch("api", "ok")
			break
		}
		cursor = page.Cursor
	}

	if err := c.cache.PutFollows(ctx, actor, follows); err != nil {
		c.logger.Warn().Err(err).Str("actor", actor).Msg("cache write failed")
	}
	return follows, nil
}

// FetchFollowerCount returns the actor's follower count, 0 on any failure.
// Best-effort: enrichment must never abort the containing batch.
func (c *Client) FetchFollowerCount(ctx context.Context, actor string) int {
	if n, ok := c.cache.GetFollowerCount(ctx, actor); ok {
		c.recordCache("hit")
		return n
	}
	c.recordCache("miss")

	if err := c.limiter.Wait(ctx); err != nil {
		return 0
	}

	u := c.cfg.BaseURL + getProfilePath + "?actor=" + url.QueryEscape(actor)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFetch("api", "error")
		return 0
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.recordFetch("api", "error")
		return 0
	}

	var profile profileView
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		c.recordFetch("api", "error")
		return 0
	}
	c.recordFetch("api", "ok")

	if err := c.cache.PutFollowerCount(ctx, actor, profile.FollowersCount); err != nil {
		c.logger.Warn().Err(err).Str("actor", actor).Msg("cache write failed")
	}
	return profile.FollowersCount
}

// fetchFollowsPage requests one getFollows page, waiting on the shared
// rate limiter first.
func (c *Client) fetchFollowsPage(ctx context.Context, actor, cursor string) (*followsPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("actor", actor)
	q.Set("limit", strconv.Itoa(c.cfg.PageLimit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	u := c.cfg.BaseURL + getFollowsPath + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, serrors.NewAPIError("bluesky", resp.StatusCode, "getFollows "+actor)
	}

	var page followsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding page: %w", err)
	}
	return &page, nil
}

func (c *Client) recordFetch(source, status string) {
	if c.metrics != nil {
		c.metrics.RecordFetch(source, status)
	}
}

func (c *Client) recordCache(result string) {
	if c.metrics != nil {
		c.metrics.RecordCache(result)
	}
}
