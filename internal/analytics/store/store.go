// Package store persists analytics snapshots to PostgreSQL so traffic
// statistics survive restarts of the in-memory aggregator.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lunate/websearch/internal/analytics"
	"github.com/lunate/websearch/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS search_stats_snapshots (
    id            BIGSERIAL PRIMARY KEY,
    total_queries BIGINT NOT NULL,
    no_results    BIGINT NOT NULL,
    cache_hits    BIGINT NOT NULL,
    avg_latency   DOUBLE PRECISION NOT NULL,
    p95_latency   DOUBLE PRECISION NOT NULL,
    top_queries   JSONB NOT NULL,
    collected_at  TIMESTAMPTZ NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_snapshots_collected_at
    ON search_stats_snapshots (collected_at DESC);
`

// Store writes and reads aggregator snapshots.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New prepares the schema and returns a Store.
func New(ctx context.Context, client *postgres.Client) (*Store, error) {
	if _, err := client.DB.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating analytics schema: %w", err)
	}
	return &Store{
		db:     client.DB,
		logger: slog.Default().With("component", "analytics_store"),
	}, nil
}

// SaveSnapshot inserts one snapshot row.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.Stats) error {
	topQueries, err := json.Marshal(stats.TopQueries)
	if err != nil {
		return fmt.Errorf("encoding top queries: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO search_stats_snapshots
		    (total_queries, no_results, cache_hits, avg_latency, p95_latency, top_queries, collected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		stats.TotalQueries, stats.NoResultQueries, stats.CacheHits,
		stats.AvgLatencyMs, stats.P95LatencyMs, topQueries, stats.CollectedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	return nil
}

// Snapshot is one persisted row.
type Snapshot struct {
	ID           int64                  `json:"id"`
	TotalQueries int64                  `json:"total_queries"`
	NoResults    int64                  `json:"no_results"`
	CacheHits    int64                  `json:"cache_hits"`
	AvgLatencyMs float64                `json:"avg_latency_ms"`
	P95LatencyMs float64                `json:"p95_latency_ms"`
	TopQueries   []analytics.QueryCount `json:"top_queries"`
	CollectedAt  time.Time              `json:"collected_at"`
}

// Recent returns the newest snapshots, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, total_queries, no_results, cache_hits, avg_latency, p95_latency, top_queries, collected_at
		FROM search_stats_snapshots
		ORDER BY collected_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		var snap Snapshot
		var topQueries []byte
		if err := rows.Scan(&snap.ID, &snap.TotalQueries, &snap.NoResults, &snap.CacheHits,
			&snap.AvgLatencyMs, &snap.P95LatencyMs, &topQueries, &snap.CollectedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		if err := json.Unmarshal(topQueries, &snap.TopQueries); err != nil {
			s.logger.Warn("corrupt top_queries column, skipping", "id", snap.ID, "error", err)
			snap.TopQueries = nil
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return snapshots, nil
}

// RunPeriodic snapshots the aggregator every interval until ctx is done.
func (s *Store) RunPeriodic(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := agg.Snapshot()
			if stats.TotalQueries == 0 {
				continue
			}
			saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s.SaveSnapshot(saveCtx, stats); err != nil {
				s.logger.Error("failed to persist snapshot", "error", err)
			}
			cancel()
		}
	}
}
