package mirror

import (
	"log/slog"
	"os"
	"time"
)

// RetryingReader reads file bytes while absorbing transient sharing
// violations from concurrent writers. Only the platform's "file is locked by
// another process" error class is retried; every other I/O error fails
// immediately. The retry loop is bounded and linear: the same fixed delay
// between each of up to maxRetries attempts.
type RetryingReader struct {
	maxRetries int
	wait       time.Duration
	logger     *slog.Logger
}

// NewRetryingReader creates a reader performing up to maxRetries extra
// attempts with wait between them.
func NewRetryingReader(maxRetries int, wait time.Duration, logger *slog.Logger) *RetryingReader {
	return &RetryingReader{
		maxRetries: maxRetries,
		wait:       wait,
		logger:     logger,
	}
}

// Read returns the file's bytes and true, or nil and false when the read
// failed permanently or retries were exhausted.
func (r *RetryingReader) Read(path string) ([]byte, bool) {
	for attempt := 0; ; attempt++ {
		data, err := os.ReadFile(path)
		if err == nil {
			return data, true
		}
		if !isTransientLockErr(err) {
			return nil, false
		}
		if attempt >= r.maxRetries {
			r.logger.Warn("file still locked after retries, giving up read",
				"path", path, "attempts", attempt+1, "error", err)
			return nil, false
		}
		r.logger.Debug("file locked by another process, retrying read",
			"path", path, "attempt", attempt+1, "of", r.maxRetries, "after", r.wait)
		time.Sleep(r.wait)
	}
}
