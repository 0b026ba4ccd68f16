package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syncwatch/syncwatch/pkg/config"
	"github.com/syncwatch/syncwatch/pkg/fsevent"
	"github.com/syncwatch/syncwatch/pkg/plog"
	"github.com/syncwatch/syncwatch/pkg/sharded"
)

// pendingRename holds the source half of a rename until its destination half
// arrives. There is only one slot: rename halves are queued back to back, so
// a second rename-from before the matching rename-to means the first pair
// will never complete.
type pendingRename struct {
	oldPath string
}

// Dispatcher routes watcher events to file operations. Filtering and rename
// pairing happen synchronously on the event loop; the filesystem work itself
// runs in per-event goroutines tracked by an inflight set.
type Dispatcher struct {
	cfg     *config.Config
	ops     *FileOps
	excl    *Exclusions
	metrics Metrics
	logger  *slog.Logger

	inflight *sharded.Set
	wg       sync.WaitGroup
	seq      atomic.Int64

	mu      sync.Mutex
	pending *pendingRename

	// fatal terminates the process on invariant violations. Tests inject a
	// recorder here.
	fatal func(error)
}

// NewDispatcher wires the event-routing layer together.
func NewDispatcher(cfg *config.Config, ops *FileOps, excl *Exclusions, metrics Metrics, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		cfg:      cfg,
		ops:      ops,
		excl:     excl,
		metrics:  metrics,
		logger:   logger,
		inflight: sharded.NewSet(),
	}
	d.fatal = func(err error) {
		logger.Error("unrecoverable watch error", "error", err)
		os.Exit(1)
	}
	return d
}

// Run consumes events until the channel closes or ctx is cancelled. It does
// not wait for spawned operations; call Wait after Run returns.
func (d *Dispatcher) Run(ctx context.Context, events <-chan fsevent.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.Dispatch(ev)
		}
	}
}

// Wait blocks until all spawned operations have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Dispatch routes a single event. Rename bookkeeping is done inline so the
// pairing order matches the notification order; everything that touches the
// filesystem is spawned.
func (d *Dispatcher) Dispatch(ev fsevent.Event) {
	d.metrics.AddEventsSeen(1)
	plog.Trace(d.logger, "notification", "kind", ev.Kind.String(), "paths", ev.Paths)

	for _, path := range ev.Paths {
		if d.skip(ev.Kind, path) {
			continue
		}
		d.route(ev, path)
	}
}

// skip applies the event filters: exclusion set first, then editor temp
// files, then creation suppression.
func (d *Dispatcher) skip(kind fsevent.Kind, path string) bool {
	if d.excl.IsExcluded(path) {
		d.logger.Debug("path excluded", "path", path)
		return true
	}
	if d.cfg.ExcludeTempFiles && IsTempEditorFile(path) {
		d.logger.Debug("editor temp file ignored", "path", path)
		return true
	}
	if d.cfg.NoCreationEvents && kind == fsevent.KindCreate {
		d.logger.Debug("creation event suppressed", "path", path)
		return true
	}
	return false
}

func (d *Dispatcher) route(ev fsevent.Event, path string) {
	switch ev.Kind {
	case fsevent.KindCreate:
		d.spawn(ev, path, "create", func() error { return d.ops.Create(path) })

	case fsevent.KindModify:
		d.spawn(ev, path, "copy", func() error { return d.ops.Copy(path) })

	case fsevent.KindRenameFrom:
		d.setPending(path)

	case fsevent.KindRenameTo:
		old, ok := d.takePending()
		if !ok {
			d.logger.Warn("unpaired rename destination, ignoring", "path", path)
			return
		}
		d.spawn(ev, path, "rename", func() error { return d.ops.Rename(old, path) })

	case fsevent.KindRemove:
		d.spawn(ev, path, "remove", func() error { return d.ops.Remove(path) })

	case fsevent.KindAccess:
		// Metadata-only; nothing to mirror.

	default:
		d.logger.Warn("unrecognized event kind", "kind", ev.Kind.String(), "path", path)
	}
}

// setPending stores the rename source, discarding any stale unpaired one.
func (d *Dispatcher) setPending(oldPath string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil {
		d.logger.Warn("unpaired rename source discarded", "path", d.pending.oldPath)
	}
	d.pending = &pendingRename{oldPath: oldPath}
}

func (d *Dispatcher) takePending() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return "", false
	}
	old := d.pending.oldPath
	d.pending = nil
	return old, true
}

// spawn runs op in its own goroutine, tracked for Wait and registered in the
// inflight set under a unique key so overlapping work on the same path
// remains observable.
func (d *Dispatcher) spawn(ev fsevent.Event, path, opName string, op func() error) {
	key := fmt.Sprintf("%s#%d", path, d.seq.Add(1))
	d.inflight.Store(key)
	d.wg.Add(1)

	go func() {
		defer func() {
			d.inflight.Delete(key)
			d.wg.Done()
		}()

		err := op()
		if err != nil {
			if errors.Is(err, ErrOutsideRoot) {
				d.fatal(err)
				return
			}
			d.logger.Error("operation failed", "op", opName, "path", path, "error", err)
			return
		}
		if d.cfg.Statistics {
			d.logger.Info("handled", "op", opName, "path", path,
				"elapsed", formatElapsed(time.Since(ev.Time)))
		}
	}()
}

// Inflight returns the number of operations currently running.
func (d *Dispatcher) Inflight() int {
	return d.inflight.Count()
}

// formatElapsed renders sub-millisecond durations in microseconds and longer
// ones in milliseconds, which keeps the statistics lines scannable.
func formatElapsed(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}
