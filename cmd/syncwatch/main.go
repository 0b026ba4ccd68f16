package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/syncwatch/syncwatch/pkg/archive"
	"github.com/syncwatch/syncwatch/pkg/config"
	"github.com/syncwatch/syncwatch/pkg/fsevent"
	"github.com/syncwatch/syncwatch/pkg/mirror"
	"github.com/syncwatch/syncwatch/pkg/plog"
)

// appName is the canonical name of the application used for logging.
const appName = "syncwatch"

// version holds the application's version string.
// It's a `var` so it can be set at compile time using ldflags.
// Example: go build -ldflags="-X main.version=1.0.0"
var version = "dev"

// progressInterval is how often a statistics summary is logged while the
// mirror is running.
const progressInterval = 30 * time.Second

// parseArgs builds the run configuration from command-line arguments. The
// returned bool is true when only the version should be printed.
func parseArgs(args []string) (*config.Config, bool, error) {
	cfg := config.NewDefault()

	fs := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] SOURCE TARGET\n", appName)
		fmt.Fprintf(os.Stderr, "Continuously mirrors changes under SOURCE into TARGET.\n\n")
		fs.PrintDefaults()
	}

	var (
		excludes      []string
		retryWaitMs   int
		archiveFormat string
		showVersion   bool
	)

	fs.StringArrayVarP(&excludes, "exclude", "e", nil, "Path or glob pattern to exclude; may be repeated or comma-separated.")
	fs.BoolVar(&cfg.ExcludeTempFiles, "exclude-temporary-editor-files", false, "Ignore editor temp files (names ending in '~').")
	fs.BoolVar(&cfg.ExcludeTempFiles, "no-tmp", false, "Alias for --exclude-temporary-editor-files.")
	fs.BoolVar(&cfg.NoCreationEvents, "no-creation-events", false, "Do not mirror creation notifications.")
	fs.BoolVar(&cfg.NoCreationEvents, "no-create", false, "Alias for --no-creation-events.")
	fs.BoolVar(&cfg.IDEMode, "ide-mode", false, "Ignore .git and .idea and editor temp files.")
	fs.BoolVar(&cfg.IDEMode, "ide", false, "Alias for --ide-mode.")
	fs.BoolVar(&cfg.Statistics, "statistics", false, "Log per-operation latency and periodic counter summaries.")
	fs.BoolVar(&cfg.Statistics, "stats", false, "Alias for --statistics.")
	fs.BoolVar(&cfg.Trace, "trace", false, "Force the most verbose log level.")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Minimum log level: 'trace', 'debug', 'info', 'warn' or 'error'.")
	fs.IntVar(&cfg.RetryCount, "retry-count", cfg.RetryCount, "Retries for reads of files locked by another process.")
	fs.IntVar(&retryWaitMs, "retry-wait-ms", int(cfg.RetryWait.Milliseconds()), "Milliseconds to wait between read retries.")
	fs.IntVar(&cfg.BootstrapWorkers, "bootstrap-workers", cfg.BootstrapWorkers, "Worker goroutines for the startup fingerprint scan.")
	fs.StringVar(&cfg.ArchivePath, "archive", "", "Write a snapshot archive of TARGET to this path before mirroring.")
	fs.StringVar(&archiveFormat, "archive-format", "tar.gz", "Snapshot archive format: 'tar.gz' or 'tar.zst'.")
	fs.BoolVarP(&showVersion, "version", "V", false, "Print the version and exit.")

	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}
	if showVersion {
		return nil, true, nil
	}

	if fs.NArg() != 2 {
		fs.Usage()
		return nil, false, fmt.Errorf("expected exactly two arguments (SOURCE and TARGET), got %d", fs.NArg())
	}
	cfg.SourceDir = fs.Arg(0)
	cfg.TargetDir = fs.Arg(1)

	for _, raw := range excludes {
		cfg.Excludes = append(cfg.Excludes, config.ParseExcludeList(raw)...)
	}
	if retryWaitMs < 0 {
		return nil, false, fmt.Errorf("retry wait must not be negative, got %dms", retryWaitMs)
	}
	cfg.RetryWait = time.Duration(retryWaitMs) * time.Millisecond

	format, err := config.ArchiveFormatFromString(archiveFormat)
	if err != nil {
		return nil, false, err
	}
	cfg.ArchiveFormat = format

	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

// run wires the components together and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	level := plog.LevelFromString(cfg.LogLevel)
	if cfg.Trace {
		level = plog.LevelTrace
	}
	logger := plog.New(level)

	logger.Info("starting "+appName, "version", version, "pid", os.Getpid())
	cfg.LogSummary(logger)

	if cfg.ArchivePath != "" {
		if err := archive.Snapshot(ctx, cfg.TargetDir, cfg.ArchivePath, cfg.ArchiveFormat, logger); err != nil {
			return fmt.Errorf("snapshot archive failed: %w", err)
		}
	}

	store := mirror.NewStore(mirror.DefaultStoreCapacity)
	reader := mirror.NewRetryingReader(cfg.RetryCount, cfg.RetryWait, logger)
	excl := mirror.NewExclusions(cfg, logger)
	metrics := mirror.NewSyncMetrics(logger)

	if err := mirror.Bootstrap(ctx, cfg, store, reader, excl, logger); err != nil {
		return err
	}

	resolver := mirror.NewResolver(cfg.SourceDir, cfg.TargetDir)
	ops := mirror.NewFileOps(resolver, store, reader, metrics, logger)
	dispatcher := mirror.NewDispatcher(cfg, ops, excl, metrics, logger)

	watcher, err := fsevent.NewWatcher(cfg.SourceDir, logger)
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx, cfg.SourceDir); err != nil {
		return err
	}

	go func() {
		for err := range watcher.Errors() {
			logger.Warn("watcher error", "error", err)
		}
	}()

	if cfg.Statistics {
		metrics.StartProgress("mirror progress", progressInterval)
	}

	dispatcher.Run(ctx, watcher.Events())

	// Shutdown: stop the watcher, let inflight operations drain, then report.
	logger.Info("shutting down", "inflight", dispatcher.Inflight())
	if err := watcher.Close(); err != nil {
		logger.Warn("watcher close failed", "error", err)
	}
	dispatcher.Wait()
	metrics.StopProgress()
	metrics.AddEventsDropped(watcher.DroppedEvents())
	metrics.LogSummary("final mirror statistics")
	return nil
}

func main() {
	cfg, showVersion, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(2)
	}
	if showVersion {
		fmt.Printf("%s version %s\n", appName, version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%s exited with error: %v\n", appName, err)
		os.Exit(1)
	}
}
