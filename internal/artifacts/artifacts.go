// Package artifacts defines the on-disk layout of build outputs and the
// persistence of the URL table, offset map, and build status marker. Final
// artifacts are written to a temp file and renamed so a crashed build never
// leaves a partially written artifact behind.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Layout resolves artifact paths inside one artifacts directory.
type Layout struct {
	Dir string
}

// FinalIndex is the fully merged, fully weighted index file.
func (l Layout) FinalIndex() string { return filepath.Join(l.Dir, "index.txt") }

// OffsetMap maps terms to byte offsets into FinalIndex.
func (l Layout) OffsetMap() string { return filepath.Join(l.Dir, "fp_locations.json") }

// URLTable maps document IDs to canonical URLs.
func (l Layout) URLTable() string { return filepath.Join(l.Dir, "doc_id.json") }

// Status is the build status marker.
func (l Layout) Status() string { return filepath.Join(l.Dir, "status.json") }

// MergedIndex is the build-scoped merge output carrying raw frequencies.
func (l Layout) MergedIndex() string { return filepath.Join(l.Dir, "index_raw.txt") }

// WeightedIndex is the build-scoped pass-1 weighting output.
func (l Layout) WeightedIndex() string { return filepath.Join(l.Dir, "index_weighted.txt") }

// Partial returns the path of the n-th partial index file.
func (l Layout) Partial(n int) string {
	return filepath.Join(l.Dir, fmt.Sprintf("pi%04d.txt", n))
}

// Ensure creates the artifacts directory if needed.
func (l Layout) Ensure() error {
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return fmt.Errorf("creating artifacts directory: %w", err)
	}
	return nil
}

// Status is the build marker read at serve startup. Completed flips to true
// only after every downstream artifact has been durably written.
type Status struct {
	Completed bool      `json:"completed"`
	LastRun   time.Time `json:"last_run"`
}

// SaveStatus writes the status marker.
func (l Layout) SaveStatus(s Status) error {
	return writeJSON(l.Status(), s)
}

// LoadStatus reads the status marker. A missing marker is reported as an
// incomplete build, not an error.
func (l Layout) LoadStatus() (Status, error) {
	var s Status
	data, err := os.ReadFile(l.Status())
	if os.IsNotExist(err) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("reading status marker: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return Status{}, fmt.Errorf("parsing status marker: %w", err)
	}
	return s, nil
}

// SaveURLTable persists the document ID -> URL mapping.
func (l Layout) SaveURLTable(table map[int]string) error {
	return writeJSON(l.URLTable(), table)
}

// LoadURLTable reads the document ID -> URL mapping wholesale.
func (l Layout) LoadURLTable() (map[int]string, error) {
	data, err := os.ReadFile(l.URLTable())
	if err != nil {
		return nil, fmt.Errorf("reading URL table: %w", err)
	}
	table := make(map[int]string)
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parsing URL table: %w", err)
	}
	return table, nil
}

// SaveOffsets persists the term -> byte offset map.
func (l Layout) SaveOffsets(offsets map[string]int64) error {
	return writeJSON(l.OffsetMap(), offsets)
}

// LoadOffsets reads the term -> byte offset map wholesale.
func (l Layout) LoadOffsets() (map[string]int64, error) {
	data, err := os.ReadFile(l.OffsetMap())
	if err != nil {
		return nil, fmt.Errorf("reading offset map: %w", err)
	}
	offsets := make(map[string]int64)
	if err := json.Unmarshal(data, &offsets); err != nil {
		return nil, fmt.Errorf("parsing offset map: %w", err)
	}
	return offsets, nil
}

// writeJSON marshals v and atomically replaces path with the result.
func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}
