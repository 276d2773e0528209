// Package offsets builds the term lookup table for the final index file:
// for each term, the byte offset of its record. At query time the engine
// seeks straight to a term's line instead of scanning the file.
package offsets

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lunate/websearch/internal/index"
	apperrors "github.com/lunate/websearch/pkg/errors"
)

// Build scans the final index once and returns term -> byte offset of the
// start of that term's record. Offsets are computed from line lengths, so the
// file must not change after this pass.
func Build(ctx context.Context, indexPath string) (map[string]int64, error) {
	f, err := os.Open(indexPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", apperrors.ErrArtifactMissing, indexPath, err)
	}
	defer f.Close()

	offsets := make(map[string]int64)
	r := bufio.NewReader(f)
	var pos int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := r.ReadString('\n')
		if err == io.EOF && line == "" {
			break
		}
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("reading %s: %w", indexPath, err)
		}
		term, decErr := index.DecodeTerm(strings.TrimSuffix(line, "\n"))
		if decErr != nil {
			return nil, fmt.Errorf("%s: %w", indexPath, decErr)
		}
		if _, dup := offsets[term]; dup {
			return nil, fmt.Errorf("%w: duplicate term %q in %s", apperrors.ErrCorruptRecord, term, indexPath)
		}
		offsets[term] = pos
		pos += int64(len(line))
		if err == io.EOF {
			break
		}
	}
	slog.Default().With("component", "offsets").Info("offset map built", "terms", len(offsets))
	return offsets, nil
}
