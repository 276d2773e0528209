// Package index defines the posting data model shared by the build and serve
// phases, the line-oriented record codec used by every on-disk index file,
// and the in-memory accumulation map the indexer offloads from.
package index

import "sort"

// Posting is the per (term, document) tuple. Weight holds the raw term
// frequency until the weighting pass rewrites it as the normalized log-scaled
// weight. Importance is the additive structural score in [0, 6]: +1 for
// bold/strong, +2 for headings, +3 for title.
type Posting struct {
	Weight     float64
	Importance int
}

// PostingList maps document IDs to their posting for one term.
type PostingList map[int]Posting

// Union merges other into a copy of p. Document IDs are disjoint across
// partial indexes by construction, so no combining rule is needed.
func (p PostingList) Union(other PostingList) PostingList {
	out := make(PostingList, len(p)+len(other))
	for id, posting := range p {
		out[id] = posting
	}
	for id, posting := range other {
		out[id] = posting
	}
	return out
}

// DocIDs returns the list's document IDs in ascending order.
func (p PostingList) DocIDs() []int {
	ids := make([]int, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// TermEntry is one index record: a term and its posting list.
type TermEntry struct {
	Term     string
	Postings PostingList
}
