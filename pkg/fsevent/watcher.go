package fsevent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watcher channel capacity. Events are drained by a non-blocking dispatch
// loop, so a modest buffer only has to absorb bursts between reads.
const eventQueueCapacity = 1024

// renamePairWindow is how closely a creation must follow a rename-from to be
// treated as the destination half of that rename. The kernel queues both
// halves back to back, so the window only has to cover queue latency.
const renamePairWindow = 500 * time.Millisecond

// Watcher watches a directory tree recursively and emits tagged Events.
type Watcher struct {
	watcher   *fsnotify.Watcher
	eventChan chan Event
	errorChan chan error
	logger    *slog.Logger
	wg        sync.WaitGroup
	dropped   atomic.Int64

	// watchedPaths tracks registered directories so re-walks of a created
	// subtree do not re-Add watches that already exist.
	mu           sync.Mutex
	watchedPaths map[string]bool
}

// NewWatcher creates a watcher rooted at rootPath. Start must be called to
// begin delivery.
func NewWatcher(rootPath string, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		watcher:      fsWatcher,
		eventChan:    make(chan Event, eventQueueCapacity),
		errorChan:    make(chan error, 10),
		logger:       logger,
		watchedPaths: make(map[string]bool),
	}
	return w, nil
}

// Start registers the root tree and begins the delivery loop. It returns once
// the tree is registered; events flow until ctx is cancelled or Close is
// called.
func (w *Watcher) Start(ctx context.Context, rootPath string) error {
	if err := w.addPathRecursive(rootPath); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.watchLoop(ctx)

	w.logger.Info("watcher started", "root", rootPath)
	return nil
}

// Events returns the notification channel. It is closed when the watcher
// stops.
func (w *Watcher) Events() <-chan Event {
	return w.eventChan
}

// Errors returns the channel of watcher-level errors.
func (w *Watcher) Errors() <-chan error {
	return w.errorChan
}

// DroppedEvents returns how many notifications were discarded because the
// event queue was full.
func (w *Watcher) DroppedEvents() int64 {
	return w.dropped.Load()
}

// Close stops watching. The Events channel is closed after the delivery loop
// has drained.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	w.wg.Wait()
	close(w.eventChan)
	close(w.errorChan)
	return err
}

// addPathRecursive registers a directory and all its subdirectories. Failure
// to register a subdirectory is logged but does not abort the walk.
func (w *Watcher) addPathRecursive(rootPath string) error {
	if err := w.addPath(rootPath); err != nil {
		return fmt.Errorf("failed to watch root path %s: %w", rootPath, err)
	}

	return filepath.WalkDir(rootPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("failed to access path while registering watches", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() && path != rootPath {
			if err := w.addPath(path); err != nil {
				w.logger.Warn("failed to watch subdirectory", "path", path, "error", err)
			}
		}
		return nil
	})
}

// addPath registers a single directory watch, skipping directories that are
// already registered.
func (w *Watcher) addPath(path string) error {
	w.mu.Lock()
	already := w.watchedPaths[path]
	w.mu.Unlock()
	if already {
		return nil
	}

	if err := w.watcher.Add(path); err != nil {
		return err
	}
	w.mu.Lock()
	w.watchedPaths[path] = true
	w.mu.Unlock()
	return nil
}

// forget drops the registration bookkeeping for a path that left the tree, so
// a later directory under the same name is registered again. The kernel-side
// watches of a deleted directory are cleaned up by fsnotify itself.
func (w *Watcher) forget(path string) {
	prefix := path + string(filepath.Separator)
	w.mu.Lock()
	for p := range w.watchedPaths {
		if p == path || strings.HasPrefix(p, prefix) {
			delete(w.watchedPaths, p)
		}
	}
	w.mu.Unlock()
}

// watchLoop converts raw fsnotify events and forwards them. fsnotify reports
// only the old path of a rename; the new path arrives as a Create queued
// immediately after, so a Create inside the pair window is retagged as the
// rename destination.
func (w *Watcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()

	var (
		lastRenamePath string
		lastRenameAt   time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return

		case raw, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			ev := convert(raw)

			switch ev.Kind {
			case KindRenameFrom:
				lastRenamePath, lastRenameAt = raw.Name, ev.Time
				w.forget(raw.Name)
			case KindRemove:
				w.forget(raw.Name)
			case KindCreate:
				if isRenameDestination(lastRenamePath, lastRenameAt, ev.Time) {
					ev.Kind = KindRenameTo
				}
				lastRenamePath, lastRenameAt = "", time.Time{}
			}

			// New directories must be registered or changes beneath them
			// would go unseen. fsnotify watches are not recursive.
			if ev.Kind == KindCreate || ev.Kind == KindRenameTo {
				if info, err := os.Lstat(raw.Name); err == nil && info.IsDir() {
					if err := w.addPathRecursive(raw.Name); err != nil {
						w.logger.Warn("failed to watch new directory", "path", raw.Name, "error", err)
					}
				}
			}

			select {
			case w.eventChan <- ev:
			case <-ctx.Done():
				return
			default:
				w.dropped.Add(1)
				w.logger.Warn("event queue full, dropping notification", "path", raw.Name, "kind", ev.Kind.String())
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errorChan <- err:
			case <-ctx.Done():
				return
			default:
				w.logger.Warn("error queue full, dropping watcher error", "error", err)
			}
		}
	}
}

// isRenameDestination reports whether a creation observed at createdAt is the
// destination half of the rename whose source was oldPath. Besides falling
// inside the pair window, the source must be gone from disk: a completed
// rename leaves nothing at the old path, so an unrelated creation racing into
// the window is not mispaired.
func isRenameDestination(oldPath string, renamedAt, createdAt time.Time) bool {
	if oldPath == "" || renamedAt.IsZero() || createdAt.Sub(renamedAt) > renamePairWindow {
		return false
	}
	if _, err := os.Lstat(oldPath); err == nil {
		return false
	}
	return true
}

// convert maps a raw fsnotify event to a tagged Event. Rename destinations
// arrive from fsnotify as plain creations; watchLoop retags those, so convert
// itself never produces KindRenameTo.
func convert(raw fsnotify.Event) Event {
	var kind Kind
	switch {
	case raw.Has(fsnotify.Create):
		kind = KindCreate
	case raw.Has(fsnotify.Write):
		kind = KindModify
	case raw.Has(fsnotify.Remove):
		kind = KindRemove
	case raw.Has(fsnotify.Rename):
		kind = KindRenameFrom
	case raw.Has(fsnotify.Chmod):
		kind = KindAccess
	default:
		kind = KindOther
	}

	return Event{
		Kind:  kind,
		Paths: []string{raw.Name},
		Time:  time.Now(),
	}
}
