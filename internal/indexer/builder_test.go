package indexer

import (
	"bufio"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunate/websearch/internal/artifacts"
	"github.com/lunate/websearch/internal/corpus"
	"github.com/lunate/websearch/internal/index"
)

// stubSource yields a fixed document list in order.
type stubSource []corpus.Document

func (s stubSource) ForEach(ctx context.Context, fn func(doc corpus.Document) error) error {
	for _, doc := range s {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

func doc(url, text string) corpus.Document {
	return corpus.Document{URL: url, Text: text}
}

func readPartial(t *testing.T, path string) map[string]index.PostingList {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	out := make(map[string]index.PostingList)
	var prev string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		entry, err := index.Decode(scanner.Text())
		require.NoError(t, err)
		require.True(t, prev < entry.Term, "terms must be sorted: %q then %q", prev, entry.Term)
		prev = entry.Term
		out[entry.Term] = entry.Postings
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestBuilderOffloadCadence(t *testing.T) {
	layout := artifacts.Layout{Dir: t.TempDir()}
	src := stubSource{
		doc("http://e.com/1", "alpha beta"),
		doc("http://e.com/2", "beta gamma"),
		doc("http://e.com/3", "gamma delta"),
		doc("http://e.com/4", "delta epsilon"),
		doc("http://e.com/5", "epsilon alpha"),
	}

	b := New(layout, 2, 4)
	partials, err := b.Run(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, partials, 3, "threshold 2 over 5 docs gives batches of 2, 2, 1")

	first := readPartial(t, partials[0])
	second := readPartial(t, partials[1])
	third := readPartial(t, partials[2])
	assert.Len(t, docIDsOf(first), 2)
	assert.Len(t, docIDsOf(second), 2)
	assert.Len(t, docIDsOf(third), 1)
	assert.Equal(t, 5, b.DocCount())
}

func docIDsOf(partial map[string]index.PostingList) map[int]struct{} {
	ids := make(map[int]struct{})
	for _, postings := range partial {
		for id := range postings {
			ids[id] = struct{}{}
		}
	}
	return ids
}

func TestBuilderAssignsIDsInSourceOrder(t *testing.T) {
	layout := artifacts.Layout{Dir: t.TempDir()}
	src := stubSource{
		doc("http://e.com/first", "one"),
		doc("http://e.com/second", "two"),
		doc("http://e.com/third", "three"),
	}

	// Many workers with a tiny corpus: completion order may vary, ID
	// assignment must not.
	b := New(layout, 100, 8)
	_, err := b.Run(context.Background(), src)
	require.NoError(t, err)

	table := b.URLTable()
	assert.Equal(t, "http://e.com/first", table[1])
	assert.Equal(t, "http://e.com/second", table[2])
	assert.Equal(t, "http://e.com/third", table[3])
}

func TestBuilderDeduplicatesByCanonicalURL(t *testing.T) {
	layout := artifacts.Layout{Dir: t.TempDir()}
	src := stubSource{
		doc("http://e.com/page#intro", "cat"),
		doc("http://e.com/page#details", "dog"),
		doc("http://e.com/other", "bird"),
	}

	b := New(layout, 100, 2)
	partials, err := b.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 2, b.DocCount())
	assert.Equal(t, 1, b.Duplicates())
	table := b.URLTable()
	assert.Equal(t, "http://e.com/page", table[1], "fragment must be stripped")
	assert.Equal(t, "http://e.com/other", table[2])

	// The duplicate's content must not be indexed.
	terms := readPartial(t, partials[0])
	assert.Contains(t, terms, "cat")
	assert.NotContains(t, terms, "dog")
	assert.Contains(t, terms, "bird")
}

func TestBuilderDuplicatesAdvanceOffloadCadence(t *testing.T) {
	layout := artifacts.Layout{Dir: t.TempDir()}
	src := stubSource{
		doc("http://e.com/a", "apple"),
		doc("http://e.com/a#dup", "apple"),
		doc("http://e.com/b", "banana"),
	}

	b := New(layout, 2, 1)
	partials, err := b.Run(context.Background(), src)
	require.NoError(t, err)
	// The duplicate counts toward the threshold, so the first batch closes
	// after it, and the third document lands in the final batch.
	require.Len(t, partials, 2)
	assert.Contains(t, readPartial(t, partials[0]), "apple")
	assert.Contains(t, readPartial(t, partials[1]), "banana")
}

func TestBuilderImportanceTiers(t *testing.T) {
	layout := artifacts.Layout{Dir: t.TempDir()}
	src := stubSource{
		{
			URL:     "http://e.com/styled",
			Text:    "cat dog cat bird",
			Bold:    "cat",
			Heading: "bird",
			Title:   "cat",
		},
	}

	b := New(layout, 100, 1)
	partials, err := b.Run(context.Background(), src)
	require.NoError(t, err)

	terms := readPartial(t, partials[0])
	assert.Equal(t, index.Posting{Weight: 2, Importance: 4}, terms["cat"][1], "bold + title")
	assert.Equal(t, index.Posting{Weight: 1, Importance: 0}, terms["dog"][1])
	assert.Equal(t, index.Posting{Weight: 1, Importance: 2}, terms["bird"][1], "heading")
}

func TestBuilderEmptySource(t *testing.T) {
	layout := artifacts.Layout{Dir: t.TempDir()}
	b := New(layout, 10, 2)
	partials, err := b.Run(context.Background(), stubSource{})
	require.NoError(t, err)
	require.Len(t, partials, 1, "the final offload always runs")

	data, err := os.ReadFile(partials[0])
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(string(data)))
}
