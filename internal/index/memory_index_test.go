package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIndexSnapshotSorted(t *testing.T) {
	m := NewMemoryIndex()
	m.Add("zebra", 1, 2, 0)
	m.Add("apple", 1, 1, 3)
	m.Add("mango", 2, 5, 0)

	entries := m.Snapshot()
	require.Len(t, entries, 3)
	assert.Equal(t, "apple", entries[0].Term)
	assert.Equal(t, "mango", entries[1].Term)
	assert.Equal(t, "zebra", entries[2].Term)
	assert.Equal(t, Posting{Weight: 1, Importance: 3}, entries[0].Postings[1])
}

func TestMemoryIndexSnapshotCopies(t *testing.T) {
	m := NewMemoryIndex()
	m.Add("term", 1, 1, 0)
	entries := m.Snapshot()
	m.Reset()
	m.Add("term", 2, 9, 0)

	require.Len(t, entries[0].Postings, 1)
	assert.Contains(t, entries[0].Postings, 1)
}

func TestMemoryIndexReset(t *testing.T) {
	m := NewMemoryIndex()
	m.Add("one", 1, 1, 0)
	m.Add("two", 1, 1, 0)
	assert.Equal(t, 2, m.TermCount())
	m.Reset()
	assert.Equal(t, 0, m.TermCount())
	assert.Empty(t, m.Snapshot())
}

func TestPostingListUnion(t *testing.T) {
	a := PostingList{1: {Weight: 2}, 2: {Weight: 1, Importance: 3}}
	b := PostingList{3: {Weight: 4}}
	out := a.Union(b)
	assert.Len(t, out, 3)
	assert.Equal(t, Posting{Weight: 1, Importance: 3}, out[2])
	assert.Len(t, a, 2, "union must not mutate the receiver")
}

func TestDocIDsAscending(t *testing.T) {
	list := PostingList{9: {}, 1: {}, 5: {}}
	assert.Equal(t, []int{1, 5, 9}, list.DocIDs())
}
