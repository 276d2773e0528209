package analytics

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lunate/websearch/pkg/kafka"
)

// latencyWindow bounds the ring of latency samples kept for percentile
// computation.
const latencyWindow = 10000

// QueryCount is one entry in the top-queries report.
type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Stats is a point-in-time aggregate of search traffic.
type Stats struct {
	TotalQueries    int64        `json:"total_queries"`
	NoResultQueries int64        `json:"no_result_queries"`
	CacheHits       int64        `json:"cache_hits"`
	AvgLatencyMs    float64      `json:"avg_latency_ms"`
	P50LatencyMs    float64      `json:"p50_latency_ms"`
	P95LatencyMs    float64      `json:"p95_latency_ms"`
	P99LatencyMs    float64      `json:"p99_latency_ms"`
	TopQueries      []QueryCount `json:"top_queries"`
	LastBuild       *BuildEvent  `json:"last_build,omitempty"`
	CollectedAt     time.Time    `json:"collected_at"`
}

// Aggregator consumes analytics events from Kafka and maintains rolling
// search statistics.
type Aggregator struct {
	mu          sync.Mutex
	total       int64
	noResults   int64
	cacheHits   int64
	latencySum  float64
	latencies   []float64
	latencyNext int
	queryCounts map[string]int64
	lastBuild   *BuildEvent
	topN        int
	logger      *slog.Logger
}

func NewAggregator(topN int) *Aggregator {
	return &Aggregator{
		queryCounts: make(map[string]int64),
		topN:        topN,
		logger:      slog.Default().With("component", "analytics_aggregator"),
	}
}

// Handle is the kafka.MessageHandler entry point. The message key routes to
// the event type.
func (a *Aggregator) Handle(_ context.Context, key, value []byte) error {
	switch string(key) {
	case "search":
		ev, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			return err
		}
		a.ObserveSearch(ev)
	case "build":
		ev, err := kafka.DecodeJSON[BuildEvent](value)
		if err != nil {
			return err
		}
		a.ObserveBuild(ev)
	default:
		a.logger.Warn("unknown analytics event key", "key", string(key))
	}
	return nil
}

// ObserveSearch folds one search event into the aggregate. Also called
// directly when Kafka is disabled and events stay in-process.
func (a *Aggregator) ObserveSearch(ev SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	if ev.NoResults {
		a.noResults++
	}
	if ev.CacheHit {
		a.cacheHits++
	}
	a.latencySum += ev.DurationMs
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, ev.DurationMs)
	} else {
		a.latencies[a.latencyNext] = ev.DurationMs
		a.latencyNext = (a.latencyNext + 1) % latencyWindow
	}
	normalized := strings.ToLower(strings.Join(strings.Fields(ev.Query), " "))
	if normalized != "" {
		a.queryCounts[normalized]++
	}
}

func (a *Aggregator) ObserveBuild(ev BuildEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastBuild = &ev
}

// Snapshot computes the current statistics.
func (a *Aggregator) Snapshot() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := Stats{
		TotalQueries:    a.total,
		NoResultQueries: a.noResults,
		CacheHits:       a.cacheHits,
		LastBuild:       a.lastBuild,
		CollectedAt:     time.Now().UTC(),
	}
	if a.total > 0 {
		stats.AvgLatencyMs = a.latencySum / float64(a.total)
	}
	if len(a.latencies) > 0 {
		sorted := make([]float64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Float64s(sorted)
		stats.P50LatencyMs = percentile(sorted, 0.50)
		stats.P95LatencyMs = percentile(sorted, 0.95)
		stats.P99LatencyMs = percentile(sorted, 0.99)
	}
	stats.TopQueries = a.topQueriesLocked()
	return stats
}

func (a *Aggregator) topQueriesLocked() []QueryCount {
	all := make([]QueryCount, 0, len(a.queryCounts))
	for q, n := range a.queryCounts {
		all = append(all, QueryCount{Query: q, Count: n})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		return all[i].Query < all[j].Query
	})
	if len(all) > a.topN {
		all = all[:a.topN]
	}
	return all
}

// percentile reads the p-th quantile from an already sorted sample using
// nearest-rank.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(p * float64(len(sorted)))
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
