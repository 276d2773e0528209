package index

import "sort"

// MemoryIndex is the in-memory term map the indexer accumulates into between
// offloads. It is written from the single accumulation goroutine only; doc-ID
// assignment ordering makes concurrent writers impossible by design, so no
// locking is needed.
type MemoryIndex struct {
	terms map[string]PostingList
}

// NewMemoryIndex creates an empty accumulation map.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{terms: make(map[string]PostingList)}
}

// Add inserts or replaces the posting for (term, docID).
func (m *MemoryIndex) Add(term string, docID int, frequency int, importance int) {
	list, ok := m.terms[term]
	if !ok {
		list = make(PostingList)
		m.terms[term] = list
	}
	list[docID] = Posting{Weight: float64(frequency), Importance: importance}
}

// Snapshot returns all accumulated entries sorted ascending by term, with
// posting lists copied so a subsequent Reset cannot alias them.
func (m *MemoryIndex) Snapshot() []TermEntry {
	entries := make([]TermEntry, 0, len(m.terms))
	for term, list := range m.terms {
		postings := make(PostingList, len(list))
		for id, p := range list {
			postings[id] = p
		}
		entries = append(entries, TermEntry{Term: term, Postings: postings})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

// TermCount returns the number of distinct terms currently accumulated.
func (m *MemoryIndex) TermCount() int {
	return len(m.terms)
}

// Reset clears the map for the next batch.
func (m *MemoryIndex) Reset() {
	m.terms = make(map[string]PostingList)
}
