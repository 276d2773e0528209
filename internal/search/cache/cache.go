// Package cache wraps the query engine with a Redis result cache. Identical
// concurrent queries are collapsed with singleflight so a cold key triggers
// exactly one engine execution.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lunate/websearch/internal/search"
	"github.com/lunate/websearch/pkg/metrics"
	"github.com/lunate/websearch/pkg/redis"
)

const keyPrefix = "websearch:query:"

// Searcher is the subset of the engine the cache fronts.
type Searcher interface {
	Search(ctx context.Context, query string) search.Result
}

// CachedSearcher serves query results from Redis when possible and falls
// through to the engine otherwise. A nil Redis client disables caching and
// every call hits the engine directly.
type CachedSearcher struct {
	engine  Searcher
	redis   *redis.Client
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(engine Searcher, client *redis.Client, ttl time.Duration, m *metrics.Metrics) *CachedSearcher {
	return &CachedSearcher{
		engine:  engine,
		redis:   client,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query_cache"),
	}
}

// Search returns the cached result for the query when present. Cache
// failures degrade to an engine call, never to a query failure.
func (c *CachedSearcher) Search(ctx context.Context, query string) search.Result {
	result, _ := c.Do(ctx, query)
	return result
}

// Do is Search plus whether the result came from the cache. Error results
// other than "no results" are not cached so transient read failures don't
// stick.
func (c *CachedSearcher) Do(ctx context.Context, query string) (search.Result, bool) {
	if c.redis == nil {
		return c.engine.Search(ctx, query), false
	}

	key := cacheKey(query)
	if cached, ok := c.lookup(ctx, key); ok {
		c.metrics.CacheHitsTotal.Inc()
		return cached, true
	}
	c.metrics.CacheMissesTotal.Inc()

	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		result := c.engine.Search(ctx, query)
		if !result.ErrorStatus || result.ErrorMessage == "No results found." {
			c.store(ctx, key, result)
		}
		return result, nil
	})
	return v.(search.Result), false
}

func (c *CachedSearcher) lookup(ctx context.Context, key string) (search.Result, bool) {
	raw, err := c.redis.Get(ctx, key)
	if err != nil {
		if !redis.IsNilError(err) {
			c.logger.Warn("cache lookup failed", "error", err)
		}
		return search.Result{}, false
	}
	var result search.Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		c.logger.Warn("cache entry corrupt, discarding", "key", key, "error", err)
		return search.Result{}, false
	}
	return result, true
}

func (c *CachedSearcher) store(ctx context.Context, key string, result search.Result) {
	raw, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("cache encode failed", "error", err)
		return
	}
	if err := c.redis.Set(ctx, key, raw, c.ttl); err != nil {
		c.logger.Warn("cache store failed", "error", err)
	}
}

// Invalidate drops every cached query result. Called after a rebuild, since
// old results reference a dead build's document IDs and scores.
func (c *CachedSearcher) Invalidate(ctx context.Context) (int64, error) {
	if c.redis == nil {
		return 0, nil
	}
	n, err := c.redis.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("flushing query cache: %w", err)
	}
	c.logger.Info("query cache invalidated", "entries", n)
	return n, nil
}

// cacheKey normalizes whitespace and case so trivially different spellings
// of the same query share an entry.
func cacheKey(query string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	sum := sha256.Sum256([]byte(normalized))
	return keyPrefix + hex.EncodeToString(sum[:16])
}
