// Package weight converts raw term frequencies in a merged index into
// L2-normalized log-scaled document weights. It runs two streaming passes so
// the full index never has to fit in memory; between passes only one float
// per document is held.
package weight

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/lunate/websearch/internal/index"
	apperrors "github.com/lunate/websearch/pkg/errors"
)

// Apply rewrites the merged index at inPath into finalPath with each
// posting's frequency replaced by its normalized weight. Pass one writes
// log-scaled weights to intermediatePath while accumulating per-document
// normalizers; pass two divides them through into finalPath. Importance is
// carried unchanged.
func Apply(ctx context.Context, inPath, intermediatePath, finalPath string) error {
	logger := slog.Default().With("component", "weights")

	normalizers, terms, err := logScale(ctx, inPath, intermediatePath)
	if err != nil {
		return fmt.Errorf("log-scaling frequencies: %w", err)
	}
	if err := normalize(ctx, intermediatePath, finalPath, normalizers); err != nil {
		return fmt.Errorf("normalizing index: %w", err)
	}
	logger.Info("weights applied", "terms", terms, "documents", len(normalizers), "output", finalPath)
	return nil
}

// logScale streams the merged index once, replacing each raw frequency f
// with 1+ln(f) and summing the squares per document. Frequencies are >= 1 by
// construction so the logarithm is always defined. The returned map holds
// the L2 norm (square root of the accumulated sum) per document.
func logScale(ctx context.Context, inPath, outPath string) (map[int]float64, int, error) {
	sums := make(map[int]float64)
	terms := 0
	err := rewrite(ctx, inPath, outPath, func(entry index.TermEntry) (index.TermEntry, error) {
		terms++
		for docID, posting := range entry.Postings {
			posting.Weight = 1 + math.Log(posting.Weight)
			sums[docID] += posting.Weight * posting.Weight
			entry.Postings[docID] = posting
		}
		return entry, nil
	})
	if err != nil {
		return nil, 0, err
	}
	for docID, sum := range sums {
		sums[docID] = math.Sqrt(sum)
	}
	return sums, terms, nil
}

// normalize streams the intermediate index, dividing each weight by its
// document's norm. A document missing from the normalizer map means the two
// passes saw different data, which is corrupt state, not a recoverable
// condition.
func normalize(ctx context.Context, inPath, outPath string, normalizers map[int]float64) error {
	return rewrite(ctx, inPath, outPath, func(entry index.TermEntry) (index.TermEntry, error) {
		for docID, posting := range entry.Postings {
			norm, ok := normalizers[docID]
			if !ok || norm == 0 {
				return entry, fmt.Errorf("%w: document %d has no normalizer", apperrors.ErrCorruptRecord, docID)
			}
			posting.Weight /= norm
			entry.Postings[docID] = posting
		}
		return entry, nil
	})
}

// rewrite streams records from inPath through fn into outPath, failing
// loudly on any undecodable record.
func rewrite(ctx context.Context, inPath, outPath string, fn func(index.TermEntry) (index.TermEntry, error)) error {
	in, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", apperrors.ErrArtifactMissing, inPath, err)
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outPath, err)
	}
	w := bufio.NewWriter(out)

	r := bufio.NewReader(in)
	for {
		if err := ctx.Err(); err != nil {
			out.Close()
			return err
		}
		line, readErr := r.ReadString('\n')
		if readErr == io.EOF && line == "" {
			break
		}
		if readErr != nil && readErr != io.EOF {
			out.Close()
			return fmt.Errorf("reading %s: %w", inPath, readErr)
		}
		entry, err := index.Decode(strings.TrimSuffix(line, "\n"))
		if err != nil {
			out.Close()
			return fmt.Errorf("%s: %w", inPath, err)
		}
		entry, err = fn(entry)
		if err != nil {
			out.Close()
			return err
		}
		if _, err := w.WriteString(index.Encode(entry)); err != nil {
			out.Close()
			return fmt.Errorf("writing %s: %w", outPath, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			out.Close()
			return fmt.Errorf("writing %s: %w", outPath, err)
		}
		if readErr == io.EOF {
			break
		}
	}

	if err := w.Flush(); err != nil {
		out.Close()
		return fmt.Errorf("flushing %s: %w", outPath, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", outPath, err)
	}
	return nil
}
