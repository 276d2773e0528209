// Package corpus yields documents from a crawled corpus directory. Each
// corpus file is crawler-output JSON of the form {"url": ..., "content": ...}
// where content is raw HTML. Malformed files are reported and skipped without
// aborting enumeration.
package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Document is one extracted corpus page.
type Document struct {
	URL     string
	Text    string
	Bold    string
	Heading string
	Title   string
}

// Source streams documents to a consumer. An error returned by fn aborts the
// walk; extraction failures do not.
type Source interface {
	ForEach(ctx context.Context, fn func(doc Document) error) error
}

type crawlFile struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Walker is a Source over a directory tree of .json corpus files, visited in
// lexical path order so enumeration is deterministic.
type Walker struct {
	dir     string
	logger  *slog.Logger
	skipped int
}

// NewWalker creates a Walker rooted at dir.
func NewWalker(dir string) *Walker {
	return &Walker{
		dir:    dir,
		logger: slog.Default().With("component", "corpus-walker"),
	}
}

// ForEach walks the corpus directory and invokes fn for every readable,
// well-formed document. Unreadable or malformed files are logged and counted
// as skipped.
func (w *Walker) ForEach(ctx context.Context, fn func(doc Document) error) error {
	w.skipped = 0
	err := filepath.WalkDir(w.dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walking corpus dir: %w", err)
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		doc, ok := w.load(path)
		if !ok {
			return nil
		}
		return fn(doc)
	})
	if err != nil {
		return err
	}
	return nil
}

// Skipped returns how many files were skipped during the last ForEach.
func (w *Walker) Skipped() int {
	return w.skipped
}

func (w *Walker) load(path string) (Document, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("unreadable corpus file, skipping", "path", path, "error", err)
		w.skipped++
		return Document{}, false
	}
	var raw crawlFile
	if err := json.Unmarshal(data, &raw); err != nil {
		w.logger.Warn("malformed corpus file, skipping", "path", path, "error", err)
		w.skipped++
		return Document{}, false
	}
	if raw.URL == "" {
		w.logger.Warn("corpus file missing url, skipping", "path", path)
		w.skipped++
		return Document{}, false
	}
	extracted, err := Extract(raw.Content)
	if err != nil {
		w.logger.Warn("extraction failed, skipping", "path", path, "url", raw.URL, "error", err)
		w.skipped++
		return Document{}, false
	}
	return Document{
		URL:     raw.URL,
		Text:    extracted.Text,
		Bold:    extracted.Bold,
		Heading: extracted.Heading,
		Title:   extracted.Title,
	}, true
}
