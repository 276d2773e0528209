package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunate/websearch/internal/search"
	"github.com/lunate/websearch/pkg/metrics"
)

type countingSearcher struct {
	calls  int
	result search.Result
}

func (s *countingSearcher) Search(ctx context.Context, query string) search.Result {
	s.calls++
	return s.result
}

func TestSearchWithoutRedisPassesThrough(t *testing.T) {
	engine := &countingSearcher{result: search.Result{Results: []search.ResultItem{{URL: "http://e.com"}}}}
	c := New(engine, nil, 0, metrics.NewUnregistered())

	result, hit := c.Do(context.Background(), "cat")
	assert.False(t, hit)
	require.Len(t, result.Results, 1)
	assert.Equal(t, 1, engine.calls)

	c.Do(context.Background(), "cat")
	assert.Equal(t, 2, engine.calls, "no redis means no caching")
}

func TestInvalidateWithoutRedis(t *testing.T) {
	c := New(&countingSearcher{}, nil, 0, metrics.NewUnregistered())
	n, err := c.Invalidate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCacheKeyNormalizesQueries(t *testing.T) {
	assert.Equal(t, cacheKey("Cat  Dog"), cacheKey("cat dog"))
	assert.Equal(t, cacheKey("  cat dog  "), cacheKey("cat dog"))
	assert.NotEqual(t, cacheKey("cat dog"), cacheKey("dog cat"))
}
