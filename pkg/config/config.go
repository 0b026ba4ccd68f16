// Package config defines the immutable runtime configuration for syncwatch.
// The configuration is built once from command-line flags, validated, and then
// passed by reference into every component. Nothing in this package is a
// process-wide mutable global.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/syncwatch/syncwatch/pkg/util"
)

// Default bounds for the retrying reader. A file held open with an exclusive
// lock by an editor is usually released within a few hundred milliseconds.
const (
	DefaultRetryCount = 5
	DefaultRetryWait  = 100 * time.Millisecond
)

// ArchiveFormat selects the compression used for the startup snapshot archive.
type ArchiveFormat int

const (
	// TarGz produces a .tar.gz archive using parallel gzip.
	TarGz ArchiveFormat = iota
	// TarZst produces a .tar.zst archive using zstandard.
	TarZst
)

func (f ArchiveFormat) String() string {
	switch f {
	case TarGz:
		return "tar.gz"
	case TarZst:
		return "tar.zst"
	default:
		return fmt.Sprintf("ArchiveFormat(%d)", int(f))
	}
}

// ArchiveFormatFromString parses a user-supplied archive format name.
func ArchiveFormatFromString(s string) (ArchiveFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tar.gz", "gz", "gzip":
		return TarGz, nil
	case "tar.zst", "zst", "zstd":
		return TarZst, nil
	default:
		return TarGz, fmt.Errorf("unknown archive format %q (expected 'tar.gz' or 'tar.zst')", s)
	}
}

// Config holds every knob for a syncwatch run. It is treated as read-only
// after Validate has succeeded.
type Config struct {
	// SourceDir is the watched directory. Canonical absolute after Validate.
	SourceDir string
	// TargetDir is the mirrored directory. Canonical absolute after Validate.
	TargetDir string

	// Excludes lists paths (relative to SourceDir or absolute) and glob
	// patterns whose changes must never be mirrored.
	Excludes []string
	// ExcludeTempFiles drops notifications for editor temp files ("foo~").
	ExcludeTempFiles bool
	// NoCreationEvents suppresses handling of creation notifications.
	NoCreationEvents bool
	// IDEMode excludes .git and .idea and implies ExcludeTempFiles.
	IDEMode bool

	// Statistics adds the notification-to-completion latency to every
	// successful operation's log line.
	Statistics bool
	// Trace forces the log level down to TRACE.
	Trace bool
	// LogLevel names the minimum log level ("trace".."error").
	LogLevel string

	// RetryCount and RetryWait bound the retrying reader's linear retry loop.
	RetryCount int
	RetryWait  time.Duration

	// BootstrapWorkers bounds the parallelism of the initial tree walk.
	BootstrapWorkers int

	// ArchivePath, when set, writes a snapshot archive of TargetDir before
	// live mirroring begins.
	ArchivePath   string
	ArchiveFormat ArchiveFormat
}

// NewDefault returns a Config with every tunable at its default value.
// Directories are intentionally left empty; they are required inputs.
func NewDefault() *Config {
	return &Config{
		LogLevel:         "info",
		RetryCount:       DefaultRetryCount,
		RetryWait:        DefaultRetryWait,
		BootstrapWorkers: runtime.NumCPU(),
	}
}

// Validate checks that both directories exist, canonicalizes them, and
// normalizes the remaining fields. It must be called exactly once, before the
// Config is shared.
func (c *Config) Validate() error {
	var err error
	if c.SourceDir, err = canonicalDir("source dir", c.SourceDir); err != nil {
		return err
	}
	if c.TargetDir, err = canonicalDir("target dir", c.TargetDir); err != nil {
		return err
	}
	if c.SourceDir == c.TargetDir {
		return fmt.Errorf("source dir and target dir are the same directory '%s'", c.SourceDir)
	}

	if c.IDEMode {
		c.ExcludeTempFiles = true
	}
	if c.RetryCount < 0 {
		return fmt.Errorf("retry count must not be negative, got %d", c.RetryCount)
	}
	if c.RetryWait < 0 {
		return fmt.Errorf("retry wait must not be negative, got %s", c.RetryWait)
	}
	if c.BootstrapWorkers < 1 {
		c.BootstrapWorkers = 1
	}
	return nil
}

// canonicalDir resolves a user-supplied directory to its canonical absolute
// form, failing when it does not exist or is not a directory.
func canonicalDir(what, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%s is required", what)
	}
	expanded, err := util.ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("%s '%s': %w", what, path, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s '%s' does not exist", what, path)
		}
		return "", fmt.Errorf("%s '%s': %w", what, path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s '%s' is not a directory", what, path)
	}
	canonical, err := filepath.EvalSymlinks(expanded)
	if err != nil {
		return "", fmt.Errorf("impossible to convert %s '%s' to a valid path: %w", what, path, err)
	}
	return filepath.Abs(canonical)
}

// ParseExcludeList splits a comma-separated exclude string into its trimmed,
// non-empty segments.
func ParseExcludeList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LogSummary emits a one-line description of the run configuration.
func (c *Config) LogSummary(logger *slog.Logger) {
	logger.Info("configuration",
		"source", c.SourceDir,
		"target", c.TargetDir,
		"excludes", len(c.Excludes),
		"exclude_tmp", c.ExcludeTempFiles,
		"no_create", c.NoCreationEvents,
		"ide_mode", c.IDEMode,
		"statistics", c.Statistics,
		"retry_count", c.RetryCount,
		"retry_wait", c.RetryWait,
	)
}
