package analytics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregatorObserveSearch(t *testing.T) {
	a := NewAggregator(10)
	a.ObserveSearch(SearchEvent{Query: "cat dog", DurationMs: 4, ResultCount: 3})
	a.ObserveSearch(SearchEvent{Query: "Cat  Dog", DurationMs: 6, CacheHit: true})
	a.ObserveSearch(SearchEvent{Query: "zebra", DurationMs: 2, NoResults: true})

	stats := a.Snapshot()
	assert.Equal(t, int64(3), stats.TotalQueries)
	assert.Equal(t, int64(1), stats.NoResultQueries)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.InDelta(t, 4.0, stats.AvgLatencyMs, 1e-9)

	require.Len(t, stats.TopQueries, 2)
	assert.Equal(t, "cat dog", stats.TopQueries[0].Query, "query text is normalized before counting")
	assert.Equal(t, int64(2), stats.TopQueries[0].Count)
}

func TestAggregatorTopNBound(t *testing.T) {
	a := NewAggregator(2)
	for _, q := range []string{"one", "two", "two", "three", "three", "three"} {
		a.ObserveSearch(SearchEvent{Query: q})
	}
	stats := a.Snapshot()
	require.Len(t, stats.TopQueries, 2)
	assert.Equal(t, "three", stats.TopQueries[0].Query)
	assert.Equal(t, "two", stats.TopQueries[1].Query)
}

func TestAggregatorPercentiles(t *testing.T) {
	a := NewAggregator(10)
	for i := 1; i <= 100; i++ {
		a.ObserveSearch(SearchEvent{Query: "q", DurationMs: float64(i)})
	}
	stats := a.Snapshot()
	assert.InDelta(t, 51, stats.P50LatencyMs, 1)
	assert.InDelta(t, 96, stats.P95LatencyMs, 1)
	assert.InDelta(t, 100, stats.P99LatencyMs, 1)
}

func TestAggregatorHandleRoutesByKey(t *testing.T) {
	a := NewAggregator(10)

	searchPayload, err := json.Marshal(SearchEvent{Query: "cat", DurationMs: 3})
	require.NoError(t, err)
	require.NoError(t, a.Handle(context.Background(), []byte("search"), searchPayload))

	buildPayload, err := json.Marshal(BuildEvent{Documents: 42, CompletedAt: time.Now().UTC()})
	require.NoError(t, err)
	require.NoError(t, a.Handle(context.Background(), []byte("build"), buildPayload))

	stats := a.Snapshot()
	assert.Equal(t, int64(1), stats.TotalQueries)
	require.NotNil(t, stats.LastBuild)
	assert.Equal(t, 42, stats.LastBuild.Documents)
}

func TestAggregatorHandleRejectsBadPayload(t *testing.T) {
	a := NewAggregator(10)
	err := a.Handle(context.Background(), []byte("search"), []byte("{not json"))
	assert.Error(t, err)
}

func TestNoOpCollector(t *testing.T) {
	c := NewCollector(nil)
	c.RecordSearch(SearchEvent{Query: "cat"})
	c.RecordBuild(BuildEvent{Documents: 1})
	c.Close()
}
