// Package docs maintains a recency-ordered index of the user's readable
// documents so spoken requests like "summarize my report" resolve to a file
// without rescanning the directory on every utterance.
package docs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/voxaid/voxaid/internal/logging"
)

// ErrNotFound is returned when no document matches a request.
var ErrNotFound = errors.New("no matching document found")

// readableExts are the document types the file tool can extract text from.
var readableExts = map[string]bool{
	".pdf": true,
	".txt": true,
	".md":  true,
}

// stopwords are ignored when matching utterance words against filenames.
var stopwords = map[string]bool{
	"read": true, "summarize": true, "summary": true, "file": true,
	"files": true, "document": true, "documents": true, "please": true,
	"latest": true, "recent": true, "first": true, "last": true,
	"the": true, "a": true, "an": true, "my": true, "me": true,
	"of": true, "from": true, "about": true, "what": true, "pdf": true,
}

// Index tracks readable documents under one directory.
type Index struct {
	mu      sync.RWMutex
	dir     string
	files   map[string]time.Time // path -> mtime
	watcher *fsnotify.Watcher
}

// NewIndex scans dir and returns a populated index. The directory is created
// if missing so the watcher always has something to attach to.
func NewIndex(dir string) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	ix := &Index{
		dir:   dir,
		files: make(map[string]time.Time),
	}
	if err := ix.scan(); err != nil {
		return nil, err
	}
	return ix, nil
}

// Watch starts an fsnotify watcher on the index directory and keeps the index
// current until close. Call Close to stop.
func (ix *Index) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(ix.dir); err != nil {
		watcher.Close()
		return err
	}
	ix.mu.Lock()
	ix.watcher = watcher
	ix.mu.Unlock()

	go ix.watchLoop(watcher)
	return nil
}

func (ix *Index) watchLoop(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !readableExts[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}
			switch {
			case event.Op.Has(fsnotify.Create), event.Op.Has(fsnotify.Write):
				if info, err := os.Stat(event.Name); err == nil && !info.IsDir() {
					ix.mu.Lock()
					ix.files[event.Name] = info.ModTime()
					ix.mu.Unlock()
				}
			case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
				ix.mu.Lock()
				delete(ix.files, event.Name)
				ix.mu.Unlock()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Warnf("[docs] watcher error: %v", err)
		}
	}
}

// Close stops the watcher, if running.
func (ix *Index) Close() error {
	ix.mu.Lock()
	watcher := ix.watcher
	ix.watcher = nil
	ix.mu.Unlock()
	if watcher != nil {
		return watcher.Close()
	}
	return nil
}

func (ix *Index) scan() error {
	entries, err := os.ReadDir(ix.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !readableExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		ix.files[filepath.Join(ix.dir, entry.Name())] = info.ModTime()
	}
	return nil
}

// Find resolves an utterance to a document path. Filename words are matched
// against non-stopword utterance words; the best-scoring file wins, with
// recency breaking ties. When nothing matches by name the most recent
// document is returned, because spoken requests rarely carry exact filenames.
// ErrNotFound means no readable document exists at all.
func (ix *Index) Find(query string) (string, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.files) == 0 {
		return "", ErrNotFound
	}

	words := queryWords(query)
	best := ""
	bestScore := 0
	var bestTime time.Time
	for path, mtime := range ix.files {
		score := nameScore(filepath.Base(path), words)
		if score > bestScore || (score == bestScore && mtime.After(bestTime)) {
			best, bestScore, bestTime = path, score, mtime
		}
	}
	return best, nil
}

// Latest returns the most recently modified document.
func (ix *Index) Latest() (string, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	best := ""
	var bestTime time.Time
	for path, mtime := range ix.files {
		if mtime.After(bestTime) {
			best, bestTime = path, mtime
		}
	}
	if best == "" {
		return "", ErrNotFound
	}
	return best, nil
}

// Len reports how many documents are indexed.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.files)
}

func queryWords(query string) []string {
	var words []string
	for _, w := range strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(w) >= 3 && !stopwords[w] {
			words = append(words, w)
		}
	}
	return words
}

func nameScore(name string, words []string) int {
	name = strings.ToLower(name)
	score := 0
	for _, w := range words {
		if strings.Contains(name, w) {
			score++
		}
	}
	return score
}
