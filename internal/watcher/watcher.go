// Package watcher observes a project directory in the background and keeps a
// bounded, recency-ordered record of which source files were recently
// touched. Search uses the resulting keywords as a soft ranking boost — the
// system's proxy for "what the user is working on right now". Uses fsnotify
// as the OS watch primitive.
package watcher

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

const capacity = 20

// coalesceWindow bounds how often the same path can push a new Change.
// Editors that save via write-then-rename emit several fsnotify events per
// keystroke-triggered save; without this, one save can consume most of the
// bounded FIFO's capacity with duplicate entries for the same file.
const coalesceWindow = 500 * time.Millisecond

// allowedExtensions is the closed set of source file extensions that count
// as a signal; anything else (binaries, logs, lockfiles) is ignored.
var allowedExtensions = map[string]bool{
	"rs": true, "ts": true, "tsx": true, "jsx": true, "svelte": true,
	"py": true, "js": true, "go": true, "md": true,
}

// Change is one accepted file edit/create event.
type Change struct {
	Path      string
	Filename  string
	Timestamp time.Time
}

// Watcher holds the bounded FIFO of recent changes. Zero value is usable but
// empty; construct via Start to actually observe a directory.
type Watcher struct {
	mu       sync.Mutex
	changes  []Change
	fsw      *fsnotify.Watcher
	limiters map[string]*rate.Limiter
}

// Start launches a background goroutine that watches root recursively and
// feeds accepted events into the returned Watcher. Failure to start the OS
// watcher is non-fatal: nil is returned and callers should treat a nil
// Watcher as "no boost available" (GetBoostKeywords on a nil receiver returns
// an empty slice).
func Start(root string) *Watcher {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("watcher: could not start: %v", err)
		return nil
	}
	if err := addRecursive(fsw, root); err != nil {
		log.Printf("watcher: could not watch %s: %v", root, err)
		_ = fsw.Close()
		return nil
	}

	w := &Watcher{fsw: fsw, limiters: make(map[string]*rate.Limiter)}
	go w.loop()
	return w
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if isIgnoredDir(path) {
				return filepath.SkipDir
			}
			_ = fsw.Add(path)
		}
		return nil
	})
}

func isIgnoredDir(path string) bool {
	p := filepath.ToSlash(path)
	base := filepath.Base(p)
	return strings.HasPrefix(base, ".") || base == "node_modules" || base == "target"
}

func (w *Watcher) loop() {
	for {
		select {
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(evt)
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) handle(evt fsnotify.Event) {
	if evt.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	p := filepath.ToSlash(evt.Name)
	if strings.Contains(p, "/.") || strings.Contains(p, "/node_modules/") || strings.Contains(p, "/target/") {
		return
	}
	ext := strings.TrimPrefix(filepath.Ext(p), ".")
	if !allowedExtensions[ext] {
		return
	}
	filename := filepath.Base(p)
	if filename == "" {
		return
	}
	if !w.allow(p) {
		return
	}
	w.push(Change{Path: p, Filename: filename, Timestamp: time.Now().UTC()})
}

// allow reports whether p may push a new Change right now, coalescing the
// burst of events a single save can generate into one FIFO entry.
func (w *Watcher) allow(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	lim, ok := w.limiters[path]
	if !ok {
		lim = rate.NewLimiter(rate.Every(coalesceWindow), 1)
		w.limiters[path] = lim
	}
	return lim.Allow()
}

func (w *Watcher) push(c Change) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.changes = append(w.changes, c)
	if len(w.changes) > capacity {
		w.changes = w.changes[len(w.changes)-capacity:]
	}
}

// Recent returns a snapshot of the currently-held changes, oldest first.
func (w *Watcher) Recent() []Change {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Change, len(w.changes))
	copy(out, w.changes)
	return out
}

// GetBoostKeywords splits each stored filename's stem on non-alphanumeric
// boundaries and on lowercase-to-uppercase boundaries, so "MyWidget.rs"
// yields ["My", "Widget"]. Order is preserved and duplicates are kept:
// repeated keywords naturally weight more heavily downstream. A nil Watcher
// (OS watch failed to start) returns nil.
func (w *Watcher) GetBoostKeywords() []string {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	changes := make([]Change, len(w.changes))
	copy(changes, w.changes)
	w.mu.Unlock()

	var words []string
	for _, c := range changes {
		stem := c.Filename
		if i := strings.LastIndexByte(stem, '.'); i >= 0 {
			stem = stem[:i]
		}
		words = append(words, splitStem(stem)...)
	}
	return words
}

func splitStem(stem string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	prevLower := false
	for _, r := range stem {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !isAlnum {
			flush()
			prevLower = false
			continue
		}
		if r >= 'A' && r <= 'Z' && prevLower {
			flush()
		}
		cur.WriteRune(r)
		prevLower = r >= 'a' && r <= 'z'
	}
	flush()
	return words
}

// Stop releases the OS watch handle. Safe to call on a nil Watcher.
func (w *Watcher) Stop() {
	if w == nil || w.fsw == nil {
		return
	}
	_ = w.fsw.Close()
}
