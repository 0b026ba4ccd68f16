package mirror

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/syncwatch/syncwatch/pkg/config"
)

// Bootstrap seeds the metadata store from the current source tree so that
// the very first notification for an unchanged file is already recognized as
// identical. It copies nothing; only fingerprints are computed. Excluded
// subtrees are skipped wholesale.
func Bootstrap(ctx context.Context, cfg *config.Config, store *Store, reader *RetryingReader, excl *Exclusions, logger *slog.Logger) error {
	start := time.Now()

	workers := cfg.BootstrapWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var dirs, files, unhashed atomic.Int64

	walkErr := filepath.WalkDir(cfg.SourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("skipping unreadable path during startup scan", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if path != cfg.SourceDir && excl.IsExcluded(path) {
				return filepath.SkipDir
			}
			store.UpsertDir(CanonicalPath(path))
			dirs.Add(1)
			return nil
		}

		if excl.IsExcluded(path) {
			return nil
		}
		if cfg.ExcludeTempFiles && IsTempEditorFile(path) {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		g.Go(func() error {
			key := CanonicalPath(path)
			if data, ok := reader.Read(path); ok {
				store.UpsertFile(key, FingerprintBytes(data))
			} else {
				store.UpsertFileUnhashed(key)
				unhashed.Add(1)
			}
			files.Add(1)
			return nil
		})
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("startup scan aborted: %w", err)
	}
	if walkErr != nil {
		return fmt.Errorf("startup scan failed: %w", walkErr)
	}

	logger.Info("startup scan complete",
		"dirs", dirs.Load(),
		"files", files.Load(),
		"unhashed", unhashed.Load(),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}
