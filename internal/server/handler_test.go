package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunate/websearch/internal/analytics"
	"github.com/lunate/websearch/internal/artifacts"
	"github.com/lunate/websearch/internal/build"
	"github.com/lunate/websearch/internal/search"
	"github.com/lunate/websearch/internal/search/cache"
	"github.com/lunate/websearch/pkg/metrics"
)

func newTestServer(t *testing.T) (*httptest.Server, *analytics.Aggregator) {
	t.Helper()

	corpusDir := t.TempDir()
	pages := map[string]string{
		"doc1.json": `{"url": "http://e.com/1", "content": "<body>cat dog cat</body>"}`,
		"doc2.json": `{"url": "http://e.com/2", "content": "<head><title>dog</title></head><body>bird</body>"}`,
	}
	for name, data := range pages {
		require.NoError(t, os.WriteFile(filepath.Join(corpusDir, name), []byte(data), 0o644))
	}

	layout := artifacts.Layout{Dir: t.TempDir()}
	_, err := build.Run(context.Background(), layout, corpusDir, build.Options{
		OffloadThreshold: 100,
		Workers:          2,
	})
	require.NoError(t, err)

	engine, err := search.Open(layout, 10, true)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	m := metrics.NewUnregistered()
	aggregator := analytics.NewAggregator(10)
	collector := analytics.NewCollector(nil)
	handler := NewHandler(Config{
		Searcher:     cache.New(engine, nil, 0, m),
		Engine:       engine,
		Layout:       layout,
		Aggregator:   aggregator,
		Collector:    collector,
		Metrics:      m,
		ObserveLocal: true,
	})

	mux := http.NewServeMux()
	handler.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, aggregator
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHandleSearch(t *testing.T) {
	srv, _ := newTestServer(t)

	var result search.Result
	code := getJSON(t, srv.URL+"/api/v1/search?q=cat+dog", &result)
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, result.ErrorStatus)
	require.NotEmpty(t, result.Results)
	assert.Equal(t, "http://e.com/1", result.Results[0].URL)
	assert.GreaterOrEqual(t, result.ProcessTimeMs, 0.0)
}

func TestHandleSearchNoResults(t *testing.T) {
	srv, _ := newTestServer(t)

	var result search.Result
	code := getJSON(t, srv.URL+"/api/v1/search?q=zebra", &result)
	assert.Equal(t, http.StatusOK, code, "no results is a structured response, not an HTTP error")
	assert.True(t, result.ErrorStatus)
	assert.Equal(t, "No results found.", result.ErrorMessage)
}

func TestHandleSearchValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]any
	code := getJSON(t, srv.URL+"/api/v1/search", &body)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "required")

	long := strings.Repeat("cat+", 200)
	code = getJSON(t, srv.URL+"/api/v1/search?q="+long, &body)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHandleStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]any
	code := getJSON(t, srv.URL+"/api/v1/status", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["completed"])
	assert.Equal(t, float64(2), body["documents"])
}

func TestHandleStatsReflectsTraffic(t *testing.T) {
	srv, aggregator := newTestServer(t)

	for i := 0; i < 3; i++ {
		var result search.Result
		getJSON(t, srv.URL+"/api/v1/search?q=cat", &result)
	}

	var stats analytics.Stats
	code := getJSON(t, srv.URL+"/api/v1/analytics/stats", &stats)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(3), stats.TotalQueries)
	require.NotEmpty(t, stats.TopQueries)
	assert.Equal(t, "cat", stats.TopQueries[0].Query)
	assert.Equal(t, int64(3), aggregator.Snapshot().TotalQueries)
}

func TestHandleSnapshotsWithoutStore(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]any
	resp, err := http.Get(srv.URL + "/api/v1/analytics/snapshots")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandleInvalidateWithoutRedis(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/cache/invalidate", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, float64(0), body["invalidated"])
}
