package mirror

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/syncwatch/syncwatch/pkg/util"
)

// Metrics defines the interface for collecting and reporting mirror statistics.
type Metrics interface {
	AddEventsSeen(n int64)
	AddEventsDropped(n int64)
	AddFilesCopied(n int64)
	AddFilesIdentical(n int64)
	AddFilesRenamed(n int64)
	AddFilesRemoved(n int64)
	AddDirsCreated(n int64)
	AddDirsRemoved(n int64)
	AddBytesRead(n int64)
	AddBytesWritten(n int64)
	LogSummary(msg string)

	StartProgress(msg string, interval time.Duration)
	StopProgress()
}

// SyncMetrics holds the atomic counters for tracking the mirror's progress.
// It is the concrete implementation of the Metrics interface.
type SyncMetrics struct {
	EventsSeen     atomic.Int64
	EventsDropped  atomic.Int64
	FilesCopied    atomic.Int64
	FilesIdentical atomic.Int64
	FilesRenamed   atomic.Int64
	FilesRemoved   atomic.Int64
	DirsCreated    atomic.Int64
	DirsRemoved    atomic.Int64
	BytesRead      atomic.Int64
	BytesWritten   atomic.Int64

	logger    *slog.Logger
	stopChan  chan struct{}
	startTime time.Time
}

// NewSyncMetrics returns a metrics collector reporting through logger.
func NewSyncMetrics(logger *slog.Logger) *SyncMetrics {
	return &SyncMetrics{
		logger:    logger,
		startTime: time.Now(),
	}
}

func (m *SyncMetrics) AddEventsSeen(n int64)     { m.EventsSeen.Add(n) }
func (m *SyncMetrics) AddEventsDropped(n int64)  { m.EventsDropped.Add(n) }
func (m *SyncMetrics) AddFilesCopied(n int64)    { m.FilesCopied.Add(n) }
func (m *SyncMetrics) AddFilesIdentical(n int64) { m.FilesIdentical.Add(n) }
func (m *SyncMetrics) AddFilesRenamed(n int64)   { m.FilesRenamed.Add(n) }
func (m *SyncMetrics) AddFilesRemoved(n int64)   { m.FilesRemoved.Add(n) }
func (m *SyncMetrics) AddDirsCreated(n int64)    { m.DirsCreated.Add(n) }
func (m *SyncMetrics) AddDirsRemoved(n int64)    { m.DirsRemoved.Add(n) }
func (m *SyncMetrics) AddBytesRead(n int64)      { m.BytesRead.Add(n) }
func (m *SyncMetrics) AddBytesWritten(n int64)   { m.BytesWritten.Add(n) }

// StartProgress emits a summary line every interval until StopProgress.
func (m *SyncMetrics) StartProgress(msg string, interval time.Duration) {
	m.stopChan = make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.LogSummary(msg)
			case <-m.stopChan:
				return
			}
		}
	}()
}

func (m *SyncMetrics) StopProgress() {
	if m.stopChan != nil {
		close(m.stopChan)
	}
}

// LogSummary prints a snapshot of all counters with a custom message.
// It is called by the background ticker and once at shutdown.
func (m *SyncMetrics) LogSummary(msg string) {
	m.logger.Info(msg,
		"events_seen", m.EventsSeen.Load(),
		"events_dropped", m.EventsDropped.Load(),
		"files_copied", m.FilesCopied.Load(),
		"files_identical", m.FilesIdentical.Load(),
		"files_renamed", m.FilesRenamed.Load(),
		"files_removed", m.FilesRemoved.Load(),
		"dirs_created", m.DirsCreated.Load(),
		"dirs_removed", m.DirsRemoved.Load(),
		"bytes_read", util.ByteCountIEC(m.BytesRead.Load()),
		"bytes_written", util.ByteCountIEC(m.BytesWritten.Load()),
		"uptime", time.Since(m.startTime).Round(time.Millisecond),
	)
}

// NoopMetrics is an implementation of the Metrics interface that performs no
// operations. It disables metrics collection without changing the calling code.
type NoopMetrics struct{}

func (m *NoopMetrics) AddEventsSeen(n int64)                            {}
func (m *NoopMetrics) AddEventsDropped(n int64)                         {}
func (m *NoopMetrics) AddFilesCopied(n int64)                           {}
func (m *NoopMetrics) AddFilesIdentical(n int64)                        {}
func (m *NoopMetrics) AddFilesRenamed(n int64)                          {}
func (m *NoopMetrics) AddFilesRemoved(n int64)                          {}
func (m *NoopMetrics) AddDirsCreated(n int64)                           {}
func (m *NoopMetrics) AddDirsRemoved(n int64)                           {}
func (m *NoopMetrics) AddBytesRead(n int64)                             {}
func (m *NoopMetrics) AddBytesWritten(n int64)                          {}
func (m *NoopMetrics) LogSummary(msg string)                            {}
func (m *NoopMetrics) StartProgress(msg string, interval time.Duration) {}
func (m *NoopMetrics) StopProgress()                                    {}

// Statically assert that our types implement the interface.
var _ Metrics = (*SyncMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
