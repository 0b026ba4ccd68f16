package mirror

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sync/singleflight"

	"github.com/syncwatch/syncwatch/pkg/pool"
	"github.com/syncwatch/syncwatch/pkg/util"
)

// FileOps replays source-tree changes onto the target tree. All methods take
// absolute source paths; target paths are derived through the Resolver.
// Methods are safe for concurrent use: the store is thread-safe and
// directory creation is deduplicated through a singleflight group.
type FileOps struct {
	resolver *Resolver
	store    *Store
	reader   *RetryingReader
	metrics  Metrics
	logger   *slog.Logger
	bufPool  *pool.FixedBufferPool
	dirGroup singleflight.Group
}

// NewFileOps wires the operation layer together.
func NewFileOps(resolver *Resolver, store *Store, reader *RetryingReader, metrics Metrics, logger *slog.Logger) *FileOps {
	return &FileOps{
		resolver: resolver,
		store:    store,
		reader:   reader,
		metrics:  metrics,
		logger:   logger,
		bufPool:  pool.NewFixedBuffer(pool.DefaultCopyBufferSize),
	}
}

// Create mirrors a newly created source entry. Directories are created on
// the target; files are synced by content like a modification.
func (o *FileOps) Create(srcPath string) error {
	info, err := os.Lstat(srcPath)
	if err != nil {
		// Created and gone again before we got to it. Nothing to mirror.
		o.logger.Debug("created path already vanished", "path", srcPath)
		return nil
	}
	if info.IsDir() {
		destPath, _, err := o.resolver.DestPath(srcPath)
		if err != nil {
			return err
		}
		if err := o.ensureDirs(destPath); err != nil {
			return err
		}
		o.store.UpsertDir(CanonicalPath(srcPath))
		o.logger.Info("directory created", "path", srcPath)
		return nil
	}
	return o.Copy(srcPath)
}

// Copy syncs the content of a source file to the target. The cached
// fingerprint decides whether any bytes move: an unchanged fingerprint only
// refreshes the cache entry. A source that cannot be read even after
// retries is copied unconditionally, without a fingerprint.
func (o *FileOps) Copy(srcPath string) error {
	info, err := os.Lstat(srcPath)
	if err != nil {
		o.logger.Debug("modified path already vanished", "path", srcPath)
		return nil
	}

	key := CanonicalPath(srcPath)
	destPath, destParent, err := o.resolver.DestPath(srcPath)
	if err != nil {
		return err
	}

	if info.IsDir() {
		if err := o.ensureDirs(destPath); err != nil {
			return err
		}
		o.store.UpsertDir(key)
		return nil
	}

	data, ok := o.reader.Read(srcPath)
	if !ok {
		// Content is unknowable right now, so assume it changed.
		o.logger.Debug("source unreadable, copying unconditionally", "path", srcPath)
		if err := o.ensureDirs(destParent); err != nil {
			return err
		}
		if err := o.streamCopy(srcPath, destPath); err != nil {
			return err
		}
		o.store.UpsertFileUnhashed(key)
		o.metrics.AddFilesCopied(1)
		o.logger.Info("file copied", "path", srcPath)
		return nil
	}
	o.metrics.AddBytesRead(int64(len(data)))

	fp := FingerprintBytes(data)
	if entry, found := o.store.Lookup(key); found && entry.HasFingerprint && entry.Fingerprint == fp {
		o.logger.Info("content identical, not copied", "path", srcPath)
		o.store.UpsertFile(key, fp)
		o.metrics.AddFilesIdentical(1)
		return nil
	}

	if err := o.ensureDirs(destParent); err != nil {
		return err
	}
	if err := o.writeFile(destPath, data); err != nil {
		return err
	}
	o.store.UpsertFile(key, fp)
	o.metrics.AddFilesCopied(1)
	o.logger.Info("file copied", "path", srcPath)
	return nil
}

// Rename replays a source rename as a target rename, preserving the cached
// fingerprint so an unchanged file is still recognized under its new name.
// When the old target does not exist the rename degrades to a fresh copy.
func (o *FileOps) Rename(oldSrc, newSrc string) error {
	oldKey := CanonicalPath(oldSrc)
	newKey := CanonicalPath(newSrc)

	oldDest, _, err := o.resolver.DestPath(oldSrc)
	if err != nil {
		return err
	}
	newDest, newParent, err := o.resolver.DestPath(newSrc)
	if err != nil {
		return err
	}

	if err := o.ensureDirs(newParent); err != nil {
		return err
	}
	if err := os.Rename(oldDest, newDest); err != nil {
		o.logger.Debug("target rename failed, copying instead",
			"from", oldDest, "to", newDest, "error", err)
		o.store.Remove(oldKey)
		return o.Create(newSrc)
	}
	o.metrics.AddFilesRenamed(1)
	o.logger.Info("renamed", "from", oldSrc, "to", newSrc)

	if !o.store.Move(oldKey, newKey) {
		// No cached entry under the old name; rebuild one from the source.
		info, err := os.Lstat(newSrc)
		switch {
		case err != nil:
			o.store.Remove(newKey)
		case info.IsDir():
			o.store.UpsertDir(newKey)
		default:
			if data, ok := o.reader.Read(newSrc); ok {
				o.metrics.AddBytesRead(int64(len(data)))
				o.store.UpsertFile(newKey, FingerprintBytes(data))
			} else {
				o.store.UpsertFileUnhashed(newKey)
			}
		}
	}
	return nil
}

// Remove deletes the target counterpart of a removed source entry. A target
// that is already gone is a silent no-op. The cache entry is dropped either
// way.
func (o *FileOps) Remove(srcPath string) error {
	key := CanonicalPath(srcPath)
	defer o.store.Remove(key)

	destPath, _, err := o.resolver.DestPath(srcPath)
	if err != nil {
		return err
	}

	info, err := os.Lstat(destPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("could not stat target %q: %w", destPath, err)
	}

	if info.IsDir() {
		if err := os.RemoveAll(destPath); err != nil {
			return fmt.Errorf("could not remove target directory %q: %w", destPath, err)
		}
		o.metrics.AddDirsRemoved(1)
		o.logger.Info("directory removed", "path", srcPath)
		return nil
	}
	if err := os.Remove(destPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("could not remove target file %q: %w", destPath, err)
	}
	o.metrics.AddFilesRemoved(1)
	o.logger.Info("file removed", "path", srcPath)
	return nil
}

// ensureDirs creates dir and its parents on the target. Concurrent calls
// for the same directory collapse into a single MkdirAll.
func (o *FileOps) ensureDirs(dir string) error {
	_, err, _ := o.dirGroup.Do(dir, func() (any, error) {
		if _, err := os.Stat(dir); err == nil {
			return nil, nil
		}
		if err := os.MkdirAll(dir, util.UserWritableDirPerms); err != nil {
			return nil, fmt.Errorf("could not create target directory %q: %w", dir, err)
		}
		o.metrics.AddDirsCreated(1)
		return nil, nil
	})
	return err
}

func (o *FileOps) writeFile(destPath string, data []byte) error {
	if err := os.WriteFile(destPath, data, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("could not write target file %q: %w", destPath, err)
	}
	o.metrics.AddBytesWritten(int64(len(data)))
	return nil
}

// streamCopy transfers a file through a pooled buffer without holding the
// whole content in memory.
func (o *FileOps) streamCopy(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("could not open source %q: %w", srcPath, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return fmt.Errorf("could not create target file %q: %w", destPath, err)
	}

	buf := o.bufPool.Get()
	n, err := io.CopyBuffer(dst, src, *buf)
	o.bufPool.Put(buf)
	if err != nil {
		dst.Close()
		return fmt.Errorf("could not copy %q: %w", srcPath, err)
	}
	o.metrics.AddBytesRead(n)
	o.metrics.AddBytesWritten(n)
	return dst.Close()
}
