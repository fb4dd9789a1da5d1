// Package watcher turns file system notifications into debounced batches of
// workspace-relative change events.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"codekb/internal/lang"
)

// EventType is the kind of change observed on disk.
type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
)

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is one change to a workspace-relative slash path. A delete event may
// name a directory, meaning everything below it is gone.
type Event struct {
	Type      EventType
	Path      string
	Timestamp time.Time
}

// ChangeHandler receives each debounced batch in arrival order.
type ChangeHandler func(events []Event)

// Config configures a Watcher.
type Config struct {
	Debounce time.Duration
	// ExcludeDir reports whether a directory should not be watched.
	ExcludeDir func(rel string) bool
}

// Watcher watches a workspace tree with fsnotify.
type Watcher struct {
	root    string
	cfg     Config
	logger  *slog.Logger
	fsw     *fsnotify.Watcher
	batch   *BatchDebouncer[Event]
	watched map[string]bool
	mu      sync.Mutex
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started bool
}

// New creates a watcher for root. Events are delivered to handler after the
// configured debounce period.
func New(root string, cfg Config, logger *slog.Logger, handler ChangeHandler) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 750 * time.Millisecond
	}
	if cfg.ExcludeDir == nil {
		cfg.ExcludeDir = func(string) bool { return false }
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &Watcher{
		root:    root,
		cfg:     cfg,
		logger:  logger,
		fsw:     fsw,
		batch:   NewBatchDebouncer(cfg.Debounce, func(events []Event) { handler(events) }),
		watched: make(map[string]bool),
	}, nil
}

// Start registers every non-excluded directory and begins delivering events.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.mu.Unlock()

	if _, err := w.addTree(""); err != nil {
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.loop(ctx)

	w.logger.Info("Watching workspace",
		"root", w.root,
		"directories", w.WatchedDirs(),
		"debounce", w.cfg.Debounce,
	)
	return nil
}

// Stop stops watching and flushes pending events.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.fsw.Close()
	w.wg.Wait()
	w.batch.Flush()
	return err
}

// WatchedDirs returns the number of directories being watched.
func (w *Watcher) WatchedDirs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watched)
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error", "error", err.Error())
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	now := time.Now()

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if w.cfg.ExcludeDir(rel) {
				return
			}
			// Files written before the watch was registered are reported here.
			created, err := w.addTree(rel)
			if err != nil {
				w.logger.Warn("Failed to watch new directory", "path", rel, "error", err.Error())
			}
			for _, p := range created {
				w.batch.Add(Event{Type: EventCreate, Path: p, Timestamp: now})
			}
			return
		}
		if lang.IsTracked(rel) {
			w.batch.Add(Event{Type: EventCreate, Path: rel, Timestamp: now})
		}
	case ev.Has(fsnotify.Write):
		if lang.IsTracked(rel) {
			w.batch.Add(Event{Type: EventModify, Path: rel, Timestamp: now})
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.mu.Lock()
		wasDir := w.watched[rel]
		delete(w.watched, rel)
		w.mu.Unlock()
		if wasDir || lang.IsTracked(rel) {
			w.batch.Add(Event{Type: EventDelete, Path: rel, Timestamp: now})
		}
	}
}

// addTree watches dir and its non-excluded subdirectories, returning the
// tracked files already present.
func (w *Watcher) addTree(dir string) ([]string, error) {
	var files []string
	start := filepath.Join(w.root, filepath.FromSlash(dir))
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == start {
				return err
			}
			return nil
		}
		rel, relErr := filepath.Rel(w.root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			rel = ""
		}

		if !d.IsDir() {
			if dir != "" && d.Type().IsRegular() && lang.IsTracked(rel) {
				files = append(files, rel)
			}
			return nil
		}
		if rel != "" && w.cfg.ExcludeDir(rel) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			if errors.Is(err, fsnotify.ErrClosed) {
				return err
			}
			w.logger.Debug("Failed to watch directory", "path", rel, "error", err.Error())
			return nil
		}
		w.mu.Lock()
		w.watched[rel] = true
		w.mu.Unlock()
		return nil
	})
	if err != nil {
		return files, fmt.Errorf("watching %s: %w", start, err)
	}
	return files, nil
}
