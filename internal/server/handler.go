// Package server exposes the HTTP API: search, build status, analytics, and
// cache administration.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lunate/websearch/internal/analytics"
	analyticsstore "github.com/lunate/websearch/internal/analytics/store"
	"github.com/lunate/websearch/internal/artifacts"
	"github.com/lunate/websearch/internal/search"
	"github.com/lunate/websearch/internal/search/cache"
	apperrors "github.com/lunate/websearch/pkg/errors"
	"github.com/lunate/websearch/pkg/logger"
	"github.com/lunate/websearch/pkg/metrics"
)

const maxQueryLength = 512

// Handler serves the API routes.
type Handler struct {
	searcher     *cache.CachedSearcher
	engine       *search.Engine
	layout       artifacts.Layout
	aggregator   *analytics.Aggregator
	collector    *analytics.Collector
	store        *analyticsstore.Store
	metrics      *metrics.Metrics
	observeLocal bool
	logger       *slog.Logger
}

// Config wires the handler's collaborators. Store may be nil when Postgres
// is disabled; ObserveLocal folds search events into the in-process
// aggregator directly, used when no Kafka consumer feeds it.
type Config struct {
	Searcher     *cache.CachedSearcher
	Engine       *search.Engine
	Layout       artifacts.Layout
	Aggregator   *analytics.Aggregator
	Collector    *analytics.Collector
	Store        *analyticsstore.Store
	Metrics      *metrics.Metrics
	ObserveLocal bool
}

func NewHandler(cfg Config) *Handler {
	return &Handler{
		searcher:     cfg.Searcher,
		engine:       cfg.Engine,
		layout:       cfg.Layout,
		aggregator:   cfg.Aggregator,
		collector:    cfg.Collector,
		store:        cfg.Store,
		metrics:      cfg.Metrics,
		observeLocal: cfg.ObserveLocal,
		logger:       slog.Default().With("component", "http"),
	}
}

// Register attaches the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.handleSearch)
	mux.HandleFunc("GET /api/v1/status", h.handleStatus)
	mux.HandleFunc("GET /api/v1/analytics/stats", h.handleStats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", h.handleSnapshots)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.handleInvalidate)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		h.writeError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required"))
		return
	}
	if len(query) > maxQueryLength {
		h.writeError(w, r, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "query exceeds %d characters", maxQueryLength))
		return
	}

	start := time.Now()
	result, cacheHit := h.searcher.Do(r.Context(), query)
	h.observeSearch(r.Context(), query, result, cacheHit, time.Since(start))
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) observeSearch(ctx context.Context, query string, result search.Result, cacheHit bool, took time.Duration) {
	resultType := "ok"
	if result.ErrorStatus {
		resultType = "no_results"
		if result.ErrorMessage != "No results found." {
			resultType = "error"
		}
	}
	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(took.Seconds())
	h.metrics.SearchResultsCount.Observe(float64(len(result.Results)))

	event := analytics.SearchEvent{
		Query:       query,
		RequestID:   logger.RequestID(ctx),
		ResultCount: len(result.Results),
		CacheHit:    cacheHit,
		NoResults:   resultType == "no_results",
		DurationMs:  float64(took.Microseconds()) / 1000,
		ObservedAt:  time.Now().UTC(),
	}
	if len(result.Results) > 0 {
		event.TopResult = result.Results[0].URL
	}
	h.collector.RecordSearch(event)
	if h.observeLocal {
		h.aggregator.ObserveSearch(event)
	}
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.layout.LoadStatus()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"completed":    status.Completed,
		"last_run":     status.LastRun,
		"documents":    h.engine.DocCount(),
		"unique_terms": h.engine.TermCount(),
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.aggregator.Snapshot())
}

func (h *Handler) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, r, apperrors.New(apperrors.ErrInternal, http.StatusServiceUnavailable, "snapshot storage is not configured"))
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			h.writeError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be an integer in [1, 500]"))
			return
		}
		limit = n
	}
	snapshots, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"snapshots": snapshots})
}

func (h *Handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	n, err := h.searcher.Invalidate(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"invalidated": n})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		message = appErr.Message
	}
	if status >= 500 {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		message = "internal error"
	}
	h.writeJSON(w, status, map[string]any{
		"error":      message,
		"request_id": logger.RequestID(r.Context()),
	})
}
