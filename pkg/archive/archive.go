// Package archive writes a compressed tar snapshot of a directory tree.
// The mirror takes one of the target before it starts touching it, so a bad
// run can always be rolled back.
package archive

import (
	"archive/tar"
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/syncwatch/syncwatch/pkg/config"
	"github.com/syncwatch/syncwatch/pkg/pool"
)

const writeBufferSize = 512 * 1024

// Snapshot archives srcDir into outPath using the given format. The archive
// is assembled in a temp file next to outPath and moved into place with an
// atomic rename, so a crashed or cancelled run never leaves a half-written
// archive under the final name.
func Snapshot(ctx context.Context, srcDir, outPath string, format config.ArchiveFormat, logger *slog.Logger) (retErr error) {
	start := time.Now()
	logger.Info("writing snapshot archive", "source", srcDir, "archive", outPath)

	tmp, err := os.CreateTemp(filepath.Dir(outPath), "syncwatch-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if retErr != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := writeTar(ctx, srcDir, tmp, format); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp archive: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("failed to move archive into place: %w", err)
	}

	logger.Info("snapshot archive written", "archive", outPath,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func writeTar(ctx context.Context, srcDir string, out io.Writer, format config.ArchiveFormat) (retErr error) {
	bufWriter := bufio.NewWriterSize(out, writeBufferSize)

	var compressed io.WriteCloser
	switch format {
	case config.TarZst:
		zw, err := zstd.NewWriter(bufWriter)
		if err != nil {
			return fmt.Errorf("failed to create zstd writer: %w", err)
		}
		compressed = zw
	default:
		gw, err := pgzip.NewWriterLevel(bufWriter, pgzip.DefaultCompression)
		if err != nil {
			return fmt.Errorf("failed to create gzip writer: %w", err)
		}
		compressed = gw
	}

	tw := tar.NewWriter(compressed)
	defer func() {
		if err := tw.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("tar writer close failed: %w", err)
		}
		if err := compressed.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("compressed writer close failed: %w", err)
		}
		if err := bufWriter.Flush(); err != nil && retErr == nil {
			retErr = fmt.Errorf("buffer flush failed: %w", err)
		}
	}()

	bufPool := pool.NewFixedBuffer(pool.DefaultCopyBufferSize)
	bufPtr := bufPool.Get()
	defer bufPool.Put(bufPtr)

	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return fmt.Errorf("failed to relativize %s: %w", path, err)
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}

		switch {
		case info.IsDir():
			header, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			header.Name = rel + "/"
			return tw.WriteHeader(header)

		case info.Mode()&os.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("failed to read link %s: %w", path, err)
			}
			header, err := tar.FileInfoHeader(info, linkTarget)
			if err != nil {
				return err
			}
			header.Name = rel
			return tw.WriteHeader(header)

		case info.Mode().IsRegular():
			header, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			header.Name = rel
			if err := tw.WriteHeader(header); err != nil {
				return fmt.Errorf("failed to write tar header for %s: %w", rel, err)
			}
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", path, err)
			}
			_, err = io.CopyBuffer(tw, f, *bufPtr)
			f.Close()
			if err != nil {
				return fmt.Errorf("failed to archive %s: %w", rel, err)
			}
			return nil

		default:
			// Sockets, devices and the like have no place in a snapshot.
			return nil
		}
	})
}
