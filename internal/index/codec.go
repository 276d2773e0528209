package index

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/lunate/websearch/pkg/errors"
)

// Record format, one term per line:
//
//	term<TAB>docID:weight:importance docID:weight:importance ...
//
// Postings are written in ascending document-ID order so that encoding is
// deterministic and re-encoding an unchanged record is byte-identical.
// Weights use strconv's shortest round-trippable float representation.
// Decode is strict: any malformed field fails with ErrCorruptRecord rather
// than dropping postings.

// Encode serialises a TermEntry as a single record line without the trailing
// newline.
func Encode(e TermEntry) string {
	var sb strings.Builder
	sb.WriteString(e.Term)
	sb.WriteByte('\t')
	for i, id := range e.Postings.DocIDs() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		p := e.Postings[id]
		sb.WriteString(strconv.Itoa(id))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatFloat(p.Weight, 'g', -1, 64))
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(p.Importance))
	}
	return sb.String()
}

// Decode parses one record line (without trailing newline).
func Decode(line string) (TermEntry, error) {
	term, rest, ok := strings.Cut(line, "\t")
	if !ok || term == "" {
		return TermEntry{}, fmt.Errorf("%w: missing term field in %q", apperrors.ErrCorruptRecord, truncate(line))
	}
	postings := make(PostingList)
	for _, field := range strings.Fields(rest) {
		parts := strings.SplitN(field, ":", 3)
		if len(parts) != 3 {
			return TermEntry{}, fmt.Errorf("%w: malformed posting %q for term %q", apperrors.ErrCorruptRecord, field, term)
		}
		id, err := strconv.Atoi(parts[0])
		if err != nil || id < 1 {
			return TermEntry{}, fmt.Errorf("%w: bad document ID %q for term %q", apperrors.ErrCorruptRecord, parts[0], term)
		}
		weight, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return TermEntry{}, fmt.Errorf("%w: bad weight %q for term %q", apperrors.ErrCorruptRecord, parts[1], term)
		}
		importance, err := strconv.Atoi(parts[2])
		if err != nil {
			return TermEntry{}, fmt.Errorf("%w: bad importance %q for term %q", apperrors.ErrCorruptRecord, parts[2], term)
		}
		if _, dup := postings[id]; dup {
			return TermEntry{}, fmt.Errorf("%w: duplicate document ID %d for term %q", apperrors.ErrCorruptRecord, id, term)
		}
		postings[id] = Posting{Weight: weight, Importance: importance}
	}
	if len(postings) == 0 {
		return TermEntry{}, fmt.Errorf("%w: empty posting list for term %q", apperrors.ErrCorruptRecord, term)
	}
	return TermEntry{Term: term, Postings: postings}, nil
}

// DecodeTerm parses only the term key of a record line. The offset pass uses
// it to avoid materialising posting lists it does not need.
func DecodeTerm(line string) (string, error) {
	term, _, ok := strings.Cut(line, "\t")
	if !ok || term == "" {
		return "", fmt.Errorf("%w: missing term field in %q", apperrors.ErrCorruptRecord, truncate(line))
	}
	return term, nil
}

func truncate(line string) string {
	const max = 64
	if len(line) <= max {
		return line
	}
	return fmt.Sprintf("%s... (%d bytes)", line[:max], len(line))
}
