package merge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunate/websearch/internal/index"
	apperrors "github.com/lunate/websearch/pkg/errors"
)

func writeIndexFile(t *testing.T, dir, name string, entries ...index.TermEntry) string {
	t.Helper()
	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(index.Encode(e))
		sb.WriteByte('\n')
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func entry(term string, ids ...int) index.TermEntry {
	postings := make(index.PostingList)
	for _, id := range ids {
		postings[id] = index.Posting{Weight: float64(id)}
	}
	return index.TermEntry{Term: term, Postings: postings}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	trimmed := strings.TrimSuffix(string(data), "\n")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

func TestMergeTwoPartials(t *testing.T) {
	dir := t.TempDir()
	a := writeIndexFile(t, dir, "pi0000.txt", entry("apple", 1), entry("cherry", 2))
	b := writeIndexFile(t, dir, "pi0001.txt", entry("banana", 3), entry("cherry", 4))
	out := filepath.Join(dir, "index_raw.txt")

	require.NoError(t, Merge(context.Background(), []string{a, b}, out))

	lines := readLines(t, out)
	require.Len(t, lines, 3)
	terms := make([]string, len(lines))
	for i, line := range lines {
		decoded, err := index.Decode(line)
		require.NoError(t, err)
		terms[i] = decoded.Term
		if decoded.Term == "cherry" {
			assert.Len(t, decoded.Postings, 2, "equal terms union their postings")
			assert.Contains(t, decoded.Postings, 2)
			assert.Contains(t, decoded.Postings, 4)
		}
	}
	assert.Equal(t, []string{"apple", "banana", "cherry"}, terms)
}

func TestMergeConsumesInputs(t *testing.T) {
	dir := t.TempDir()
	a := writeIndexFile(t, dir, "pi0000.txt", entry("one", 1))
	b := writeIndexFile(t, dir, "pi0001.txt", entry("two", 2))
	out := filepath.Join(dir, "index_raw.txt")

	require.NoError(t, Merge(context.Background(), []string{a, b}, out))
	assert.NoFileExists(t, a)
	assert.NoFileExists(t, b)
	assert.NoFileExists(t, filepath.Join(dir, "merge_a.tmp"))
	assert.NoFileExists(t, filepath.Join(dir, "merge_b.tmp"))
	assert.FileExists(t, out)
}

func TestMergeSinglePartial(t *testing.T) {
	dir := t.TempDir()
	a := writeIndexFile(t, dir, "pi0000.txt", entry("solo", 1))
	out := filepath.Join(dir, "index_raw.txt")

	require.NoError(t, Merge(context.Background(), []string{a}, out))
	lines := readLines(t, out)
	require.Len(t, lines, 1)
	decoded, err := index.Decode(lines[0])
	require.NoError(t, err)
	assert.Equal(t, "solo", decoded.Term)
}

func TestMergeEmptyPartialIsNoOp(t *testing.T) {
	dir := t.TempDir()
	a := writeIndexFile(t, dir, "pi0000.txt", entry("term", 1))
	empty := filepath.Join(dir, "pi0001.txt")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	out := filepath.Join(dir, "index_raw.txt")

	require.NoError(t, Merge(context.Background(), []string{a, empty}, out))
	lines := readLines(t, out)
	require.Len(t, lines, 1)
}

func TestMergeNoPartials(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "index_raw.txt")
	require.NoError(t, Merge(context.Background(), nil, out))
	assert.Empty(t, readLines(t, out))
}

func TestMergeMissingPartialAborts(t *testing.T) {
	dir := t.TempDir()
	a := writeIndexFile(t, dir, "pi0000.txt", entry("term", 1))
	out := filepath.Join(dir, "index_raw.txt")

	err := Merge(context.Background(), []string{a, filepath.Join(dir, "gone.txt")}, out)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrArtifactMissing)
	assert.FileExists(t, a, "inputs must survive a failed merge")
}

func TestMergeCorruptRecordFailsLoudly(t *testing.T) {
	dir := t.TempDir()
	a := writeIndexFile(t, dir, "pi0000.txt", entry("good", 1))
	corrupt := filepath.Join(dir, "pi0001.txt")
	require.NoError(t, os.WriteFile(corrupt, []byte("good\t1:0.5:0\nbroken-line-without-tab\n"), 0o644))
	out := filepath.Join(dir, "index_raw.txt")

	err := Merge(context.Background(), []string{a, corrupt}, out)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrCorruptRecord)
}

func TestMergeAssociativity(t *testing.T) {
	e1 := []index.TermEntry{entry("alpha", 1), entry("beta", 2)}
	e2 := []index.TermEntry{entry("beta", 3), entry("gamma", 4)}
	e3 := []index.TermEntry{entry("alpha", 5), entry("delta", 6)}

	runOrder := func(order [][]index.TermEntry) []string {
		dir := t.TempDir()
		var paths []string
		for i, entries := range order {
			paths = append(paths, writeIndexFile(t, dir, fmt.Sprintf("pi%04d.txt", i), entries...))
		}
		out := filepath.Join(dir, "out.txt")
		require.NoError(t, Merge(context.Background(), paths, out))
		return readLines(t, out)
	}

	first := runOrder([][]index.TermEntry{e1, e2, e3})
	second := runOrder([][]index.TermEntry{e3, e1, e2})
	third := runOrder([][]index.TermEntry{e2, e3, e1})
	assert.Equal(t, first, second)
	assert.Equal(t, first, third)
}
