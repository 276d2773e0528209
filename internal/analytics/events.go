// Package analytics tracks search usage: events published to Kafka per
// query, aggregated into in-memory stats, and periodically snapshotted to
// Postgres.
package analytics

import "time"

// SearchEvent records one served query.
type SearchEvent struct {
	Query       string    `json:"query"`
	RequestID   string    `json:"request_id,omitempty"`
	ResultCount int       `json:"result_count"`
	TopResult   string    `json:"top_result,omitempty"`
	CacheHit    bool      `json:"cache_hit"`
	NoResults   bool      `json:"no_results"`
	DurationMs  float64   `json:"duration_ms"`
	ObservedAt  time.Time `json:"observed_at"`
}

// BuildEvent records one completed index build.
type BuildEvent struct {
	Documents   int       `json:"documents"`
	Duplicates  int       `json:"duplicates"`
	Skipped     int       `json:"skipped"`
	Partials    int       `json:"partials"`
	UniqueTerms int       `json:"unique_terms"`
	DurationMs  float64   `json:"duration_ms"`
	CompletedAt time.Time `json:"completed_at"`
}
