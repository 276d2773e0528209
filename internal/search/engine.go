// Package search implements the query engine. It loads the offset map and
// URL table wholesale at startup, then answers queries with one positioned
// read per uncached term: lnc.ltc cosine scoring with a structural-importance
// bonus, ranked by soft conjunction.
package search

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sort"
	"time"

	"github.com/lunate/websearch/internal/artifacts"
	"github.com/lunate/websearch/internal/index"
	"github.com/lunate/websearch/internal/tokenizer"
	apperrors "github.com/lunate/websearch/pkg/errors"
)

// stopDropLimit is the largest fraction of query tokens that stop-word
// removal may discard. Queries that are mostly stop words keep them.
const stopDropLimit = 0.2

// ResultItem is one ranked document.
type ResultItem struct {
	URL          string  `json:"url"`
	Score        float64 `json:"score"`
	MatchedTerms int     `json:"matched_terms"`
}

// Result is the structured query response. Query-time failures are reported
// here rather than raised past the engine boundary.
type Result struct {
	Results       []ResultItem `json:"results"`
	ErrorStatus   bool         `json:"error_status"`
	ErrorMessage  string       `json:"error_message"`
	ProcessTimeMs float64      `json:"process_time_ms"`
}

// Engine answers queries against one completed build's artifacts. Concurrent
// queries share the single index file handle through positioned reads, so no
// query's seek can race another's.
type Engine struct {
	file       *os.File
	offsets    map[string]int64
	urls       map[int]string
	precached  map[string]index.PostingList
	maxResults int
	logger     *slog.Logger
}

// Open loads the serve-phase artifacts for the given layout. It fails with
// ErrIndexNotBuilt when the status marker is absent or not completed, and
// optionally precaches stop-word postings so frequent terms never hit disk.
func Open(layout artifacts.Layout, maxResults int, precacheStops bool) (*Engine, error) {
	status, err := layout.LoadStatus()
	if err != nil {
		return nil, fmt.Errorf("loading build status: %w", err)
	}
	if !status.Completed {
		return nil, apperrors.ErrIndexNotBuilt
	}

	offsets, err := layout.LoadOffsets()
	if err != nil {
		return nil, fmt.Errorf("loading offset map: %w", err)
	}
	urls, err := layout.LoadURLTable()
	if err != nil {
		return nil, fmt.Errorf("loading url table: %w", err)
	}
	f, err := os.Open(layout.FinalIndex())
	if err != nil {
		return nil, fmt.Errorf("%w: opening final index: %v", apperrors.ErrArtifactMissing, err)
	}

	e := &Engine{
		file:       f,
		offsets:    offsets,
		urls:       urls,
		precached:  make(map[string]index.PostingList),
		maxResults: maxResults,
		logger:     slog.Default().With("component", "search"),
	}
	if precacheStops {
		if err := e.precacheStopWords(); err != nil {
			f.Close()
			return nil, fmt.Errorf("precaching stop words: %w", err)
		}
	}
	e.logger.Info("engine ready",
		"documents", len(urls), "terms", len(offsets), "precached", len(e.precached))
	return e, nil
}

// Close releases the index file handle.
func (e *Engine) Close() error {
	return e.file.Close()
}

// DocCount returns the number of documents in the serving build.
func (e *Engine) DocCount() int { return len(e.urls) }

// TermCount returns the number of unique terms in the serving build.
func (e *Engine) TermCount() int { return len(e.offsets) }

func (e *Engine) precacheStopWords() error {
	for _, term := range tokenizer.StopTerms() {
		off, ok := e.offsets[term]
		if !ok {
			continue
		}
		entry, err := e.readEntryAt(off)
		if err != nil {
			return fmt.Errorf("term %q: %w", term, err)
		}
		e.precached[term] = entry.Postings
	}
	return nil
}

// Search runs one query. Index read failures surface as a structured error
// result; empty queries and queries matching no documents report "no
// results" the same way.
func (e *Engine) Search(ctx context.Context, query string) Result {
	start := time.Now()

	tokens := tokenizer.Tokenize(query)
	if len(tokens) == 0 {
		return noResults(start)
	}
	tokens = applyStopRule(tokens)

	frequencies := tokenizer.CountFrequencies(tokens)
	terms := make([]string, 0, len(frequencies))
	for term := range frequencies {
		terms = append(terms, term)
	}
	// Fixed accumulation order keeps floating-point sums, and therefore
	// rankings, identical across runs of the same query.
	sort.Strings(terms)

	type termPostings struct {
		weight   float64
		postings index.PostingList
	}
	matched := make([]termPostings, 0, len(terms))
	notFound := 0
	var sumSquares float64
	total := float64(len(e.urls))
	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return errorResult(start, "query cancelled")
		}
		postings, ok, err := e.fetch(term)
		if err != nil {
			e.logger.Error("posting lookup failed", "term", term, "error", err)
			return errorResult(start, "index read failed")
		}
		if !ok {
			notFound++
			continue
		}
		w := (1 + math.Log(float64(frequencies[term]))) * math.Log(total/float64(len(postings)))
		sumSquares += w * w
		matched = append(matched, termPostings{weight: w, postings: postings})
	}
	if len(matched) == 0 {
		return noResults(start)
	}

	norm := math.Sqrt(sumSquares)
	type candidate struct {
		doc     int
		score   float64
		matched int
	}
	candidates := make(map[int]*candidate)
	for _, tp := range matched {
		qw := tp.weight
		if norm > 0 {
			qw /= norm
		}
		for docID, posting := range tp.postings {
			c, ok := candidates[docID]
			if !ok {
				c = &candidate{doc: docID}
				candidates[docID] = c
			}
			c.score += qw*posting.Weight + float64(posting.Importance)
			c.matched++
		}
	}

	// Soft conjunction: collect levels from most matched terms downward and
	// stop once enough candidates have accumulated. Lower levels never
	// outrank higher ones.
	byLevel := make(map[int][]*candidate)
	for _, c := range candidates {
		byLevel[c.matched] = append(byLevel[c.matched], c)
	}
	collected := make([]*candidate, 0, e.maxResults)
	for level := len(matched); level >= 1; level-- {
		tier := byLevel[level]
		sort.Slice(tier, func(i, j int) bool {
			if tier[i].score != tier[j].score {
				return tier[i].score > tier[j].score
			}
			return tier[i].doc < tier[j].doc
		})
		collected = append(collected, tier...)
		if len(collected) >= e.maxResults {
			break
		}
	}
	if len(collected) > e.maxResults {
		collected = collected[:e.maxResults]
	}

	items := make([]ResultItem, 0, len(collected))
	for _, c := range collected {
		url, ok := e.urls[c.doc]
		if !ok {
			e.logger.Warn("document missing from url table", "doc_id", c.doc)
			continue
		}
		items = append(items, ResultItem{URL: url, Score: c.score, MatchedTerms: c.matched})
	}
	if len(items) == 0 {
		return noResults(start)
	}
	e.logger.Debug("query served",
		"terms", len(terms), "not_found", notFound,
		"candidates", len(candidates), "results", len(items))
	return Result{Results: items, ProcessTimeMs: elapsedMs(start)}
}

// applyStopRule drops stop-word tokens only when doing so removes at most
// stopDropLimit of the query; short stop-heavy queries keep everything.
func applyStopRule(tokens []tokenizer.Token) []tokenizer.Token {
	kept := make([]tokenizer.Token, 0, len(tokens))
	for _, t := range tokens {
		if !t.Stop {
			kept = append(kept, t)
		}
	}
	removed := len(tokens) - len(kept)
	if removed == 0 || float64(removed) > stopDropLimit*float64(len(tokens)) {
		return tokens
	}
	return kept
}

// fetch returns the posting list for a term, serving precached terms from
// memory and everything else via one positioned read at the term's offset.
func (e *Engine) fetch(term string) (index.PostingList, bool, error) {
	if postings, ok := e.precached[term]; ok {
		return postings, true, nil
	}
	off, ok := e.offsets[term]
	if !ok {
		return nil, false, nil
	}
	entry, err := e.readEntryAt(off)
	if err != nil {
		return nil, false, err
	}
	if entry.Term != term {
		return nil, false, fmt.Errorf("%w: offset for %q points at %q", apperrors.ErrCorruptRecord, term, entry.Term)
	}
	return entry.Postings, true, nil
}

func (e *Engine) readEntryAt(off int64) (index.TermEntry, error) {
	line, err := e.readLineAt(off)
	if err != nil {
		return index.TermEntry{}, err
	}
	return index.Decode(line)
}

// readLineAt reads one newline-terminated record starting at off using
// ReadAt, so concurrent queries never move a shared file position.
func (e *Engine) readLineAt(off int64) (string, error) {
	var record []byte
	chunk := make([]byte, 4096)
	for {
		n, err := e.file.ReadAt(chunk, off)
		if n > 0 {
			if i := bytes.IndexByte(chunk[:n], '\n'); i >= 0 {
				return string(append(record, chunk[:i]...)), nil
			}
			record = append(record, chunk[:n]...)
			off += int64(n)
		}
		if err == io.EOF {
			return string(record), nil
		}
		if err != nil {
			return "", fmt.Errorf("reading index record: %w", err)
		}
	}
}

func noResults(start time.Time) Result {
	return Result{
		Results:       []ResultItem{},
		ErrorStatus:   true,
		ErrorMessage:  "No results found.",
		ProcessTimeMs: elapsedMs(start),
	}
}

func errorResult(start time.Time, message string) Result {
	return Result{
		Results:       []ResultItem{},
		ErrorStatus:   true,
		ErrorMessage:  message,
		ProcessTimeMs: elapsedMs(start),
	}
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
