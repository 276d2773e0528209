package benchmark

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lunate/websearch/internal/artifacts"
	"github.com/lunate/websearch/internal/build"
	"github.com/lunate/websearch/internal/search"
)

var vocabulary = []string{
	"search", "index", "query", "document", "token", "weight", "merge",
	"offset", "posting", "corpus", "ranking", "cosine", "frequency",
	"normalize", "partial", "engine", "crawler", "extract", "title",
	"heading", "threshold", "stream", "record", "vector", "term",
}

// buildBenchIndex creates a synthetic corpus and runs the full build once per
// benchmark binary invocation.
func buildBenchIndex(b *testing.B, docs int) *search.Engine {
	b.Helper()
	rng := rand.New(rand.NewSource(42))
	corpusDir := b.TempDir()
	for i := 0; i < docs; i++ {
		words := make([]string, 50+rng.Intn(150))
		for j := range words {
			words[j] = vocabulary[rng.Intn(len(vocabulary))]
		}
		page := map[string]string{
			"url":     fmt.Sprintf("http://bench.local/doc/%d", i),
			"content": "<html><body>" + strings.Join(words, " ") + "</body></html>",
		}
		data, err := json.Marshal(page)
		if err != nil {
			b.Fatal(err)
		}
		name := filepath.Join(corpusDir, fmt.Sprintf("doc%05d.json", i))
		if err := os.WriteFile(name, data, 0o644); err != nil {
			b.Fatal(err)
		}
	}

	layout := artifacts.Layout{Dir: b.TempDir()}
	_, err := build.Run(context.Background(), layout, corpusDir, build.Options{
		OffloadThreshold: 100,
		Workers:          4,
	})
	if err != nil {
		b.Fatal(err)
	}
	engine, err := search.Open(layout, 10, true)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { engine.Close() })
	return engine
}

func BenchmarkSearch(b *testing.B) {
	engine := buildBenchIndex(b, 500)
	queries := []string{
		"search index",
		"query document ranking",
		"cosine weight normalize vector",
		"posting",
	}
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		result := engine.Search(context.Background(), queries[i%len(queries)])
		if result.ErrorStatus {
			b.Fatalf("unexpected error result: %s", result.ErrorMessage)
		}
	}
}

func BenchmarkSearchParallel(b *testing.B) {
	engine := buildBenchIndex(b, 500)
	b.ResetTimer()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			result := engine.Search(context.Background(), "search index ranking")
			_ = result
		}
	})
}

func BenchmarkBuild(b *testing.B) {
	rng := rand.New(rand.NewSource(7))
	corpusDir := b.TempDir()
	for i := 0; i < 100; i++ {
		words := make([]string, 100)
		for j := range words {
			words[j] = vocabulary[rng.Intn(len(vocabulary))]
		}
		data, err := json.Marshal(map[string]string{
			"url":     fmt.Sprintf("http://bench.local/doc/%d", i),
			"content": "<body>" + strings.Join(words, " ") + "</body>",
		})
		if err != nil {
			b.Fatal(err)
		}
		name := filepath.Join(corpusDir, fmt.Sprintf("doc%05d.json", i))
		if err := os.WriteFile(name, data, 0o644); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		layout := artifacts.Layout{Dir: b.TempDir()}
		_, err := build.Run(context.Background(), layout, corpusDir, build.Options{
			OffloadThreshold: 25,
			Workers:          4,
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}
