// Package build orchestrates the full index build: partial-index
// construction, merge, weighting, and offset extraction run strictly in
// sequence, with the status marker flipped to completed only after every
// artifact is durably written.
package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lunate/websearch/internal/artifacts"
	"github.com/lunate/websearch/internal/corpus"
	"github.com/lunate/websearch/internal/indexer"
	"github.com/lunate/websearch/internal/merge"
	"github.com/lunate/websearch/internal/offsets"
	"github.com/lunate/websearch/internal/weight"
	"github.com/lunate/websearch/pkg/metrics"
)

// Report summarizes one completed build.
type Report struct {
	Documents   int           `json:"documents"`
	Duplicates  int           `json:"duplicates"`
	Skipped     int           `json:"skipped"`
	Partials    int           `json:"partials"`
	UniqueTerms int           `json:"unique_terms"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`
}

// Options configures a build run. Metrics may be nil for CLI builds.
type Options struct {
	OffloadThreshold int
	Workers          int
	Metrics          *metrics.Metrics
}

// Run executes the pipeline against the corpus under corpusDir. The status
// marker is written false before any work and true only at the end, so an
// aborted build forces a rebuild on the next startup.
func Run(ctx context.Context, layout artifacts.Layout, corpusDir string, opts Options) (Report, error) {
	logger := slog.Default().With("component", "build")
	start := time.Now()

	if err := layout.Ensure(); err != nil {
		return Report{}, err
	}
	if err := layout.SaveStatus(artifacts.Status{Completed: false, LastRun: start.UTC()}); err != nil {
		return Report{}, fmt.Errorf("marking build started: %w", err)
	}

	walker := corpus.NewWalker(corpusDir)
	builder := indexer.New(layout, opts.OffloadThreshold, opts.Workers)
	partials, err := builder.Run(ctx, walker)
	if err != nil {
		return Report{}, fmt.Errorf("indexing corpus: %w", err)
	}
	if err := layout.SaveURLTable(builder.URLTable()); err != nil {
		return Report{}, fmt.Errorf("saving url table: %w", err)
	}
	logger.Info("indexing complete",
		"documents", builder.DocCount(),
		"duplicates", builder.Duplicates(),
		"skipped", walker.Skipped(),
		"partials", len(partials))

	if err := merge.Merge(ctx, partials, layout.MergedIndex()); err != nil {
		return Report{}, fmt.Errorf("merging partial indexes: %w", err)
	}
	if err := weight.Apply(ctx, layout.MergedIndex(), layout.WeightedIndex(), layout.FinalIndex()); err != nil {
		return Report{}, fmt.Errorf("weighting index: %w", err)
	}
	offsetMap, err := offsets.Build(ctx, layout.FinalIndex())
	if err != nil {
		return Report{}, fmt.Errorf("building offset map: %w", err)
	}
	if err := layout.SaveOffsets(offsetMap); err != nil {
		return Report{}, fmt.Errorf("saving offset map: %w", err)
	}
	removeIntermediates(layout, logger)

	completed := time.Now().UTC()
	if err := layout.SaveStatus(artifacts.Status{Completed: true, LastRun: completed}); err != nil {
		return Report{}, fmt.Errorf("marking build completed: %w", err)
	}

	report := Report{
		Documents:   builder.DocCount(),
		Duplicates:  builder.Duplicates(),
		Skipped:     walker.Skipped(),
		Partials:    len(partials),
		UniqueTerms: len(offsetMap),
		Duration:    time.Since(start),
		CompletedAt: completed,
	}
	observe(opts.Metrics, report)
	logger.Info("build complete",
		"documents", report.Documents,
		"unique_terms", report.UniqueTerms,
		"duration", report.Duration)
	return report, nil
}

// removeIntermediates drops the merged and log-scaled files once the final
// index exists. They are rebuildable, so failure to remove them is only
// noise.
func removeIntermediates(layout artifacts.Layout, logger *slog.Logger) {
	for _, path := range []string{layout.MergedIndex(), layout.WeightedIndex()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove intermediate file", "path", path, "error", err)
		}
	}
}

func observe(m *metrics.Metrics, report Report) {
	if m == nil {
		return
	}
	m.DocsIndexedTotal.Add(float64(report.Documents))
	m.DocsSkippedTotal.WithLabelValues("duplicate").Add(float64(report.Duplicates))
	m.DocsSkippedTotal.WithLabelValues("malformed").Add(float64(report.Skipped))
	m.PartialIndexesTotal.Add(float64(report.Partials))
	m.MergeRoundsTotal.Add(float64(max(report.Partials-1, 0)))
	m.BuildDurationSeconds.Set(report.Duration.Seconds())
	m.IndexedTermsTotal.Set(float64(report.UniqueTerms))
	m.BuildCompletedAtUnix.Set(float64(report.CompletedAt.Unix()))
}
