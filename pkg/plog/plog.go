// Package plog builds the structured loggers used across syncwatch.
//
// It holds no process-wide mutable state: New constructs a *slog.Logger and
// every component receives one by injection. The handler splits output by
// severity (INFO and below to stdout, WARN and above to stderr) and adds a
// TRACE level below DEBUG for raw watcher events.
package plog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LevelTrace sits below slog.LevelDebug and is used for per-notification
// diagnostics that are too chatty even for debug output.
const LevelTrace = slog.Level(-8)

// LevelDispatchHandler is a slog.Handler that writes log records to different
// handlers based on the record's level. INFO and below go to one handler,
// while WARNING and above go to another.
type LevelDispatchHandler struct {
	stdoutHandler slog.Handler
	stderrHandler slog.Handler
}

// Enabled checks if the level is enabled for either of the underlying handlers.
func (h *LevelDispatchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.stdoutHandler.Enabled(ctx, level) || h.stderrHandler.Enabled(ctx, level)
}

// Handle dispatches the record to the appropriate handler.
func (h *LevelDispatchHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		return h.stderrHandler.Handle(ctx, r)
	}
	return h.stdoutHandler.Handle(ctx, r)
}

// WithAttrs returns a new LevelDispatchHandler with the given attributes added.
func (h *LevelDispatchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithAttrs(attrs),
		stderrHandler: h.stderrHandler.WithAttrs(attrs),
	}
}

// WithGroup returns a new LevelDispatchHandler with the given group.
func (h *LevelDispatchHandler) WithGroup(name string) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithGroup(name),
		stderrHandler: h.stderrHandler.WithGroup(name),
	}
}

// replaceAttr rewrites the timestamp to millisecond resolution and names the
// custom TRACE level, which slog would otherwise render as "DEBUG-4".
func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.TimeKey:
		if t, ok := a.Value.Any().(time.Time); ok && len(groups) == 0 {
			a.Value = slog.StringValue(t.Format("15:04:05.000"))
		}
	case slog.LevelKey:
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// New returns a logger that dispatches INFO and below to stdout and WARN and
// above to stderr, filtering both at the given level.
func New(level slog.Level) *slog.Logger {
	opts := func() *slog.HandlerOptions {
		return &slog.HandlerOptions{Level: level, ReplaceAttr: replaceAttr}
	}
	return slog.New(&LevelDispatchHandler{
		stdoutHandler: slog.NewTextHandler(os.Stdout, opts()),
		stderrHandler: slog.NewTextHandler(os.Stderr, opts()),
	})
}

// NewWithWriter returns a logger writing every level to w. It exists primarily
// for tests that need to capture output.
func NewWithWriter(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr,
	}))
}

// LevelFromString maps a user-supplied level name to a slog.Level.
// Unknown names fall back to Info.
func LevelFromString(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Trace logs msg at the TRACE level.
func Trace(l *slog.Logger, msg string, args ...any) {
	l.Log(context.Background(), LevelTrace, msg, args...)
}
