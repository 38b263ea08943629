// Package watcher monitors a local directory for settled document
// files and reports them on a channel.
package watcher

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileEvent is a document that appeared (or changed) under the watched
// directory and has been quiet for the debounce window.
type FileEvent struct {
	Path string
}

type Watcher struct {
	fsw       *fsnotify.Watcher
	root      string
	extension string
	debounce  time.Duration
	events    chan FileEvent

	mu      sync.Mutex
	pending map[string]time.Time
}

// New creates a watcher for the given directory. Only files matching
// the extension (e.g. ".pdf", case-insensitive) are reported.
func New(root, extension string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fsw:       fsw,
		root:      root,
		extension: strings.ToLower(extension),
		debounce:  debounce,
		events:    make(chan FileEvent, 64),
		pending:   make(map[string]time.Time),
	}, nil
}

// Events returns the channel of settled file events.
func (w *Watcher) Events() <-chan FileEvent {
	return w.events
}

// Start begins watching. It returns immediately; events arrive on
// Events() until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	go w.eventLoop(ctx)
	go w.debounceLoop(ctx)

	return nil
}

func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.fsw.Close()
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	// New directories get watched too.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				log.Printf("watching %s: %v", event.Name, err)
			}
			return
		}
	}

	if !w.matches(event.Name) {
		return
	}

	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) matches(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == w.extension
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.flushSettled(ctx)
		}
	}
}

// flushSettled emits files that have been quiet for the full debounce
// window.
func (w *Watcher) flushSettled(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var ready []string

	for path, lastChange := range w.pending {
		if now.Sub(lastChange) >= w.debounce {
			ready = append(ready, path)
		}
	}
	for _, path := range ready {
		delete(w.pending, path)
	}
	w.mu.Unlock()

	for _, path := range ready {
		if _, err := os.Stat(path); err != nil {
			continue // gone before it settled
		}
		select {
		case w.events <- FileEvent{Path: path}:
		case <-ctx.Done():
			return
		}
	}
}

// addRecursive watches a directory and all its subdirectories.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && p != root {
				return filepath.SkipDir
			}
			return w.fsw.Add(p)
		}
		return nil
	})
}
