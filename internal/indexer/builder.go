// Package indexer builds term-sorted partial index files from a document
// source under a bounded memory budget. All build state (document ID counter,
// seen-URL set, URL table, in-memory term map) is owned by a single Builder
// so builds are isolated and testable.
package indexer

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/lunate/websearch/internal/artifacts"
	"github.com/lunate/websearch/internal/corpus"
	"github.com/lunate/websearch/internal/index"
	"github.com/lunate/websearch/internal/tokenizer"
)

// Importance increments per tagged tier. A term appearing in several tiers
// accumulates them, capping the score at 6.
const (
	boldBonus    = 1
	headingBonus = 2
	titleBonus   = 3
)

// Builder consumes documents and offloads sorted partial indexes whenever the
// processed-document count reaches the offload threshold.
type Builder struct {
	layout    artifacts.Layout
	threshold int
	workers   int

	mem        *index.MemoryIndex
	seen       map[uint64]struct{}
	urlTable   map[int]string
	nextID     int
	processed  int
	duplicates int
	partials   []string
	logger     *slog.Logger
}

// New creates a Builder writing partial indexes into the layout's directory.
func New(layout artifacts.Layout, offloadThreshold, workers int) *Builder {
	if workers < 1 {
		workers = 1
	}
	return &Builder{
		layout:    layout,
		threshold: offloadThreshold,
		workers:   workers,
		mem:       index.NewMemoryIndex(),
		seen:      make(map[uint64]struct{}),
		urlTable:  make(map[int]string),
		logger:    slog.Default().With("component", "indexer"),
	}
}

// analyzed is the tokenized form of one document, tagged with its enumeration
// sequence number so accumulation can restore source order.
type analyzed struct {
	seq         int
	canonical   string
	frequencies map[string]int
	bold        map[string]struct{}
	heading     map[string]struct{}
	title       map[string]struct{}
}

// Run streams the source through the tokenisation workers and the ordered
// accumulation step, returning the partial index files it offloaded. Document
// IDs are assigned in source order regardless of worker completion order.
func (b *Builder) Run(ctx context.Context, src corpus.Source) ([]string, error) {
	if err := b.layout.Ensure(); err != nil {
		return nil, err
	}

	jobs := make(chan analysisJob, b.workers)
	results := make(chan analyzed, b.workers)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		seq := 0
		return src.ForEach(ctx, func(doc corpus.Document) error {
			job := analysisJob{seq: seq, doc: doc}
			seq++
			select {
			case jobs <- job:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	})

	var workerGroup errgroup.Group
	for i := 0; i < b.workers; i++ {
		workerGroup.Go(func() error {
			for job := range jobs {
				result := analyze(job)
				select {
				case results <- result:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(results)
		return workerGroup.Wait()
	})

	accumErr := make(chan error, 1)
	go func() {
		accumErr <- b.accumulate(results)
	}()

	if err := g.Wait(); err != nil {
		<-accumErr
		return nil, fmt.Errorf("analyzing corpus: %w", err)
	}
	if err := <-accumErr; err != nil {
		return nil, err
	}

	// Final offload, even when the last batch is short or empty.
	if err := b.offload(); err != nil {
		return nil, err
	}
	b.logger.Info("partial index construction complete",
		"documents", b.nextID,
		"duplicates", b.duplicates,
		"partials", len(b.partials),
	)
	return b.partials, nil
}

type analysisJob struct {
	seq int
	doc corpus.Document
}

// analyze tokenizes one document. It runs on the worker pool; everything here
// is side-effect-free.
func analyze(job analysisJob) analyzed {
	tokens := tokenizer.Tokenize(job.doc.Text)
	return analyzed{
		seq:         job.seq,
		canonical:   canonicalURL(job.doc.URL),
		frequencies: tokenizer.CountFrequencies(tokens),
		bold:        tokenizer.TermSet(job.doc.Bold),
		heading:     tokenizer.TermSet(job.doc.Heading),
		title:       tokenizer.TermSet(job.doc.Title),
	}
}

// accumulate consumes worker results, reorders them into source order, and
// applies them one at a time. This is the only goroutine that touches the
// doc-ID counter, the seen set, and the memory index.
func (b *Builder) accumulate(results <-chan analyzed) error {
	pending := make(map[int]analyzed)
	next := 0
	for result := range results {
		pending[result.seq] = result
		for {
			r, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if err := b.apply(r); err != nil {
				// Drain so the workers are not blocked on send.
				for range results {
				}
				return err
			}
		}
	}
	return nil
}

// apply deduplicates, assigns the document ID, and inserts postings. The
// processed counter advances for duplicates too: the offload cadence follows
// enumeration order, not the deduplicated count.
func (b *Builder) apply(r analyzed) error {
	b.processed++

	hash := xxhash.Sum64String(r.canonical)
	if _, dup := b.seen[hash]; dup {
		b.duplicates++
		b.logger.Debug("duplicate URL skipped", "url", r.canonical)
	} else {
		b.seen[hash] = struct{}{}
		b.nextID++
		docID := b.nextID
		b.urlTable[docID] = r.canonical

		for term, freq := range r.frequencies {
			importance := 0
			if _, ok := r.bold[term]; ok {
				importance += boldBonus
			}
			if _, ok := r.heading[term]; ok {
				importance += headingBonus
			}
			if _, ok := r.title[term]; ok {
				importance += titleBonus
			}
			b.mem.Add(term, docID, freq, importance)
		}
	}

	if b.processed%b.threshold == 0 {
		return b.offload()
	}
	return nil
}

// offload writes the current memory index as the next sorted partial index
// file and clears the map.
func (b *Builder) offload() error {
	path := b.layout.Partial(len(b.partials))
	if err := writePartial(path, b.mem.Snapshot()); err != nil {
		return err
	}
	b.logger.Info("partial index offloaded",
		"path", path,
		"terms", b.mem.TermCount(),
		"processed", b.processed,
	)
	b.mem.Reset()
	b.partials = append(b.partials, path)
	return nil
}

// URLTable returns the document ID -> canonical URL table built so far.
func (b *Builder) URLTable() map[int]string {
	return b.urlTable
}

// DocCount returns the number of documents that received IDs (deduplicated).
func (b *Builder) DocCount() int {
	return b.nextID
}

// Duplicates returns the number of documents rejected by the seen-URL set.
func (b *Builder) Duplicates() int {
	return b.duplicates
}

// writePartial atomically writes sorted term entries as one partial index
// file. Writing to a temp file first means a crash never leaves a truncated
// partial index that a later merge would consume.
func writePartial(path string, entries []index.TermEntry) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating partial index: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, entry := range entries {
		if _, err := w.WriteString(index.Encode(entry)); err != nil {
			f.Close()
			return fmt.Errorf("writing partial index: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			f.Close()
			return fmt.Errorf("writing partial index: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing partial index: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing partial index: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing partial index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming partial index: %w", err)
	}
	return nil
}

// canonicalURL strips the fragment from a URL. Unparsable URLs canonicalise
// to themselves; dedup still works on the raw string.
func canonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	return u.String()
}
