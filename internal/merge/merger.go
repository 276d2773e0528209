// Package merge combines term-sorted partial index files into a single sorted
// index using pairwise streaming merges over two ping-pong temp files. Temp
// files are not durable state: a crash mid-merge restarts from the partial
// indexes, never from an interrupted temp file.
package merge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lunate/websearch/internal/index"
	apperrors "github.com/lunate/websearch/pkg/errors"
)

// Merge union-merges the given sorted partial index files into outPath and
// deletes the partials and temp files on success. A missing partial aborts:
// a partial merge is never a valid result.
func Merge(ctx context.Context, partials []string, outPath string) error {
	logger := slog.Default().With("component", "merger")

	for _, p := range partials {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("%w: partial index %s: %v", apperrors.ErrArtifactMissing, p, err)
		}
	}
	if len(partials) == 0 {
		if err := os.WriteFile(outPath, nil, 0o644); err != nil {
			return fmt.Errorf("writing empty index: %w", err)
		}
		return nil
	}

	dir := filepath.Dir(outPath)
	temps := [2]string{
		filepath.Join(dir, "merge_a.tmp"),
		filepath.Join(dir, "merge_b.tmp"),
	}

	acc := partials[0]
	rounds := 0
	for _, next := range partials[1:] {
		if err := ctx.Err(); err != nil {
			return err
		}
		dst := temps[rounds%2]
		if err := mergeTwo(acc, next, dst); err != nil {
			return fmt.Errorf("merge round %d: %w", rounds+1, err)
		}
		acc = dst
		rounds++
		logger.Debug("merge round complete", "round", rounds, "into", dst)
	}

	// With a single partial the accumulator is the partial itself and the
	// rename promotes it directly.
	if err := os.Rename(acc, outPath); err != nil {
		return fmt.Errorf("renaming merged index: %w", err)
	}
	cleanup(append(partials, temps[0], temps[1]), outPath)
	logger.Info("merge complete", "partials", len(partials), "rounds", rounds, "output", outPath)
	return nil
}

// cleanup removes leftover partials and temp files, ignoring the final output
// and files that are already gone.
func cleanup(paths []string, keep string) {
	for _, p := range paths {
		if p == keep {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove merge input", "path", p, "error", err)
		}
	}
}

// mergeTwo performs one classic two-way merge of records sorted by term.
// Records with distinct terms are copied through verbatim; records with equal
// terms have their posting lists unioned (document IDs are disjoint across
// inputs by construction).
func mergeTwo(pathA, pathB, outPath string) error {
	a, err := openCursor(pathA)
	if err != nil {
		return err
	}
	defer a.close()
	b, err := openCursor(pathB)
	if err != nil {
		return err
	}
	defer b.close()

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating merge output: %w", err)
	}
	w := bufio.NewWriter(out)

	if err := a.advance(); err != nil {
		out.Close()
		return err
	}
	if err := b.advance(); err != nil {
		out.Close()
		return err
	}

	for !a.eof && !b.eof {
		var err error
		switch {
		case a.term < b.term:
			err = writeLine(w, a.line)
			if err == nil {
				err = a.advance()
			}
		case a.term > b.term:
			err = writeLine(w, b.line)
			if err == nil {
				err = b.advance()
			}
		default:
			err = writeUnion(w, a, b)
			if err == nil {
				err = a.advance()
			}
			if err == nil {
				err = b.advance()
			}
		}
		if err != nil {
			out.Close()
			return err
		}
	}
	for !a.eof {
		if err := writeLine(w, a.line); err != nil {
			out.Close()
			return err
		}
		if err := a.advance(); err != nil {
			out.Close()
			return err
		}
	}
	for !b.eof {
		if err := writeLine(w, b.line); err != nil {
			out.Close()
			return err
		}
		if err := b.advance(); err != nil {
			out.Close()
			return err
		}
	}

	if err := w.Flush(); err != nil {
		out.Close()
		return fmt.Errorf("flushing merge output: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing merge output: %w", err)
	}
	return nil
}

func writeLine(w *bufio.Writer, line string) error {
	if _, err := w.WriteString(line); err != nil {
		return fmt.Errorf("writing merge output: %w", err)
	}
	if err := w.WriteByte('\n'); err != nil {
		return fmt.Errorf("writing merge output: %w", err)
	}
	return nil
}

func writeUnion(w *bufio.Writer, a, b *cursor) error {
	entryA, err := index.Decode(a.line)
	if err != nil {
		return fmt.Errorf("%s: %w", a.path, err)
	}
	entryB, err := index.Decode(b.line)
	if err != nil {
		return fmt.Errorf("%s: %w", b.path, err)
	}
	combined := index.TermEntry{
		Term:     entryA.Term,
		Postings: entryA.Postings.Union(entryB.Postings),
	}
	return writeLine(w, index.Encode(combined))
}

// cursor walks one sorted index file a record at a time. Only the term key is
// decoded while scanning; full decoding happens on term collisions.
type cursor struct {
	f    *os.File
	r    *bufio.Reader
	path string
	line string
	term string
	eof  bool
}

func openCursor(path string) (*cursor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", apperrors.ErrArtifactMissing, path, err)
	}
	return &cursor{f: f, r: bufio.NewReader(f), path: path}, nil
}

func (c *cursor) advance() error {
	line, err := c.r.ReadString('\n')
	if err == io.EOF && line == "" {
		c.eof = true
		return nil
	}
	if err != nil && err != io.EOF {
		return fmt.Errorf("reading %s: %w", c.path, err)
	}
	c.line = strings.TrimSuffix(line, "\n")
	term, err := index.DecodeTerm(c.line)
	if err != nil {
		return fmt.Errorf("%s: %w", c.path, err)
	}
	c.term = term
	return nil
}

func (c *cursor) close() {
	c.f.Close()
}
