// Package watcher polls the asset directories of a project and reports
// changes made outside the editor.
package watcher

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FlamingRiot/Uniray-sub000/internal/logging"
)

// Event types.
const (
	EventCreate = "create"
	EventModify = "modify"
	EventDelete = "delete"
)

// Event represents a change below one watched root.
type Event struct {
	Type     string `json:"type"`
	Category string `json:"category"`
	Path     string `json:"path"`
	Time     int64  `json:"time"`
}

// dirStamp marks directories in the state map; only their presence is
// compared.
const dirStamp = -1

// Watcher polls a set of named directory roots.
type Watcher struct {
	roots    map[string]string // name -> directory
	interval time.Duration
	logger   *zap.Logger

	mu       sync.RWMutex
	state    map[string]map[string]int64 // name -> relative path -> mtime
	subs     map[chan Event]struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a watcher over roots, keyed by a name reported in events.
func New(roots map[string]string, interval time.Duration) *Watcher {
	if interval == 0 {
		interval = 2 * time.Second
	}
	r := make(map[string]string, len(roots))
	for name, dir := range roots {
		r[name] = dir
	}
	return &Watcher{
		roots:    r,
		interval: interval,
		logger:   logging.Named("watcher"),
		state:    make(map[string]map[string]int64),
		subs:     make(map[chan Event]struct{}),
		done:     make(chan struct{}),
	}
}

// Start records the initial state and begins polling.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	for name, dir := range w.roots {
		w.state[name] = snapshot(dir)
	}
	w.mu.Unlock()

	go w.watchLoop(ctx)
	return nil
}

// Stop stops the watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

// Subscribe returns a channel that receives events.
func (w *Watcher) Subscribe() chan Event {
	ch := make(chan Event, 100)
	w.mu.Lock()
	w.subs[ch] = struct{}{}
	w.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (w *Watcher) Unsubscribe(ch chan Event) {
	w.mu.Lock()
	if _, ok := w.subs[ch]; ok {
		delete(w.subs, ch)
		close(ch)
	}
	w.mu.Unlock()
}

func (w *Watcher) watchLoop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if events := w.Check(); len(events) > 0 {
				w.broadcast(events)
			}
		case <-w.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// snapshot walks dir and records every non-hidden entry.
func snapshot(dir string) map[string]int64 {
	state := make(map[string]int64)
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if path == dir {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, _ := filepath.Rel(dir, path)
		relPath = filepath.ToSlash(relPath)
		if d.IsDir() {
			state[relPath] = dirStamp
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		state[relPath] = info.ModTime().UnixNano()
		return nil
	})
	return state
}

// Check rescans every root, updates the recorded state and returns the
// changes since the previous scan, sorted by root and path.
func (w *Watcher) Check() []Event {
	var events []Event
	now := time.Now().Unix()

	names := make([]string, 0, len(w.roots))
	for name := range w.roots {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		newState := snapshot(w.roots[name])

		w.mu.RLock()
		oldState := w.state[name]
		w.mu.RUnlock()

		var changed []Event
		for path, mtime := range newState {
			oldMtime, exists := oldState[path]
			switch {
			case !exists:
				changed = append(changed, Event{Type: EventCreate, Category: name, Path: "/" + path, Time: now})
			case mtime != oldMtime:
				changed = append(changed, Event{Type: EventModify, Category: name, Path: "/" + path, Time: now})
			}
		}
		for path := range oldState {
			if _, exists := newState[path]; !exists {
				changed = append(changed, Event{Type: EventDelete, Category: name, Path: "/" + path, Time: now})
			}
		}
		sort.Slice(changed, func(i, j int) bool { return changed[i].Path < changed[j].Path })
		events = append(events, changed...)

		w.mu.Lock()
		w.state[name] = newState
		w.mu.Unlock()
	}
	return events
}

func (w *Watcher) broadcast(events []Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for ch := range w.subs {
		for _, event := range events {
			select {
			case ch <- event:
			default:
				w.logger.Warn("dropping event for slow subscriber",
					zap.String("type", event.Type),
					zap.String("category", event.Category),
					zap.String("path", event.Path))
			}
		}
	}
}

// Categories returns the distinct root names of events, in order of first
// appearance.
func Categories(events []Event) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range events {
		if !seen[e.Category] {
			seen[e.Category] = true
			out = append(out, e.Category)
		}
	}
	return out
}
