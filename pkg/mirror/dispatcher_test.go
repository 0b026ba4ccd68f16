package mirror

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/syncwatch/syncwatch/pkg/config"
	"github.com/syncwatch/syncwatch/pkg/fsevent"
	"github.com/syncwatch/syncwatch/pkg/plog"
)

type dispatcherFixture struct {
	src  string
	dst  string
	cfg  *config.Config
	disp *Dispatcher

	mu     sync.Mutex
	fatals []error
}

func newDispatcherFixture(t *testing.T, mutate func(*config.Config)) *dispatcherFixture {
	t.Helper()
	return newDispatcherFixtureWithLogger(t, mutate, discardLogger())
}

func newDispatcherFixtureWithLogger(t *testing.T, mutate func(*config.Config), logger *slog.Logger) *dispatcherFixture {
	t.Helper()
	f := &dispatcherFixture{src: t.TempDir(), dst: t.TempDir()}
	f.cfg = &config.Config{
		SourceDir:  f.src,
		TargetDir:  f.dst,
		RetryCount: 1,
		RetryWait:  time.Millisecond,
	}
	if mutate != nil {
		mutate(f.cfg)
	}

	store := NewStore(DefaultStoreCapacity)
	reader := NewRetryingReader(f.cfg.RetryCount, f.cfg.RetryWait, logger)
	ops := NewFileOps(NewResolver(f.src, f.dst), store, reader, &NoopMetrics{}, logger)
	excl := NewExclusions(f.cfg, logger)
	f.disp = NewDispatcher(f.cfg, ops, excl, &NoopMetrics{}, logger)
	f.disp.fatal = func(err error) {
		f.mu.Lock()
		f.fatals = append(f.fatals, err)
		f.mu.Unlock()
	}
	return f
}

func event(kind fsevent.Kind, path string) fsevent.Event {
	return fsevent.Event{Kind: kind, Paths: []string{path}, Time: time.Now()}
}

func (f *dispatcherFixture) writeSource(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(f.src, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestDispatchCreateMirrorsFile(t *testing.T) {
	f := newDispatcherFixture(t, nil)
	src := f.writeSource(t, "a.txt", "hello")

	f.disp.Dispatch(event(fsevent.KindCreate, src))
	f.disp.Wait()

	data, err := os.ReadFile(filepath.Join(f.dst, "a.txt"))
	if err != nil {
		t.Fatalf("target not created: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("target content = %q", data)
	}
}

func TestDispatchExcludedPathIgnored(t *testing.T) {
	f := newDispatcherFixture(t, func(c *config.Config) {
		c.Excludes = []string{"skip"}
	})
	src := f.writeSource(t, filepath.Join("skip", "a.txt"), "x")

	f.disp.Dispatch(event(fsevent.KindCreate, src))
	f.disp.Wait()

	if _, err := os.Stat(filepath.Join(f.dst, "skip")); !os.IsNotExist(err) {
		t.Error("excluded path was mirrored")
	}
}

func TestDispatchTempEditorFileIgnored(t *testing.T) {
	f := newDispatcherFixture(t, func(c *config.Config) {
		c.ExcludeTempFiles = true
	})
	src := f.writeSource(t, "a.txt~", "x")

	f.disp.Dispatch(event(fsevent.KindModify, src))
	f.disp.Wait()

	if _, err := os.Stat(filepath.Join(f.dst, "a.txt~")); !os.IsNotExist(err) {
		t.Error("editor temp file was mirrored")
	}
}

func TestDispatchCreationSuppression(t *testing.T) {
	f := newDispatcherFixture(t, func(c *config.Config) {
		c.NoCreationEvents = true
	})
	src := f.writeSource(t, "a.txt", "x")

	f.disp.Dispatch(event(fsevent.KindCreate, src))
	f.disp.Wait()
	if _, err := os.Stat(filepath.Join(f.dst, "a.txt")); !os.IsNotExist(err) {
		t.Error("creation event was not suppressed")
	}

	// Modifications still flow.
	f.disp.Dispatch(event(fsevent.KindModify, src))
	f.disp.Wait()
	if _, err := os.Stat(filepath.Join(f.dst, "a.txt")); err != nil {
		t.Errorf("modification was suppressed too: %v", err)
	}
}

func TestDispatchRenamePairing(t *testing.T) {
	f := newDispatcherFixture(t, nil)
	oldSrc := f.writeSource(t, "old.txt", "payload")

	f.disp.Dispatch(event(fsevent.KindCreate, oldSrc))
	f.disp.Wait()

	newSrc := filepath.Join(f.src, "new.txt")
	if err := os.Rename(oldSrc, newSrc); err != nil {
		t.Fatalf("source rename failed: %v", err)
	}
	f.disp.Dispatch(event(fsevent.KindRenameFrom, oldSrc))
	f.disp.Dispatch(event(fsevent.KindRenameTo, newSrc))
	f.disp.Wait()

	if _, err := os.Stat(filepath.Join(f.dst, "new.txt")); err != nil {
		t.Errorf("renamed target missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.dst, "old.txt")); !os.IsNotExist(err) {
		t.Error("old target still present after rename")
	}
}

func TestDispatchUnpairedRenameToIsNoop(t *testing.T) {
	f := newDispatcherFixture(t, nil)
	src := f.writeSource(t, "a.txt", "x")

	f.disp.Dispatch(event(fsevent.KindRenameTo, src))
	f.disp.Wait()

	if _, err := os.Stat(filepath.Join(f.dst, "a.txt")); !os.IsNotExist(err) {
		t.Error("unpaired rename destination was acted on")
	}
}

func TestDispatchStaleRenameFromOverwritten(t *testing.T) {
	f := newDispatcherFixture(t, nil)
	oldA := filepath.Join(f.src, "a.txt")
	oldB := f.writeSource(t, "b.txt", "bee")

	f.disp.Dispatch(event(fsevent.KindCreate, oldB))
	f.disp.Wait()

	newB := filepath.Join(f.src, "b2.txt")
	if err := os.Rename(oldB, newB); err != nil {
		t.Fatalf("source rename failed: %v", err)
	}

	// The first rename source never got its destination half; the second
	// rename must still pair correctly.
	f.disp.Dispatch(event(fsevent.KindRenameFrom, oldA))
	f.disp.Dispatch(event(fsevent.KindRenameFrom, oldB))
	f.disp.Dispatch(event(fsevent.KindRenameTo, newB))
	f.disp.Wait()

	if _, err := os.Stat(filepath.Join(f.dst, "b2.txt")); err != nil {
		t.Errorf("paired rename did not complete: %v", err)
	}
}

func TestDispatchRemove(t *testing.T) {
	f := newDispatcherFixture(t, nil)
	src := f.writeSource(t, "a.txt", "x")

	f.disp.Dispatch(event(fsevent.KindCreate, src))
	f.disp.Wait()
	if err := os.Remove(src); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	f.disp.Dispatch(event(fsevent.KindRemove, src))
	f.disp.Wait()
	if _, err := os.Stat(filepath.Join(f.dst, "a.txt")); !os.IsNotExist(err) {
		t.Error("target survived removal")
	}
}

func TestDispatchLogsCompletedOperations(t *testing.T) {
	var buf bytes.Buffer
	logger := plog.NewWithWriter(&buf, slog.LevelInfo)
	f := newDispatcherFixtureWithLogger(t, nil, logger)
	src := f.writeSource(t, "a.txt", "hello")

	f.disp.Dispatch(event(fsevent.KindCreate, src))
	f.disp.Wait()

	out := buf.String()
	if !strings.Contains(out, "file copied") || !strings.Contains(out, "a.txt") {
		t.Errorf("completed copy produced no info-level line; log output:\n%s", out)
	}
	if strings.Contains(out, "elapsed") {
		t.Errorf("latency logged without statistics enabled; log output:\n%s", out)
	}

	// An unchanged file is reported as identical, also at info level.
	buf.Reset()
	f.disp.Dispatch(event(fsevent.KindModify, src))
	f.disp.Wait()
	if !strings.Contains(buf.String(), "identical, not copied") {
		t.Errorf("identical content produced no info-level line; log output:\n%s", buf.String())
	}
}

func TestDispatchStatisticsAddLatency(t *testing.T) {
	var buf bytes.Buffer
	logger := plog.NewWithWriter(&buf, slog.LevelInfo)
	f := newDispatcherFixtureWithLogger(t, func(c *config.Config) {
		c.Statistics = true
	}, logger)
	src := f.writeSource(t, "a.txt", "hello")

	f.disp.Dispatch(event(fsevent.KindCreate, src))
	f.disp.Wait()

	if !strings.Contains(buf.String(), "elapsed") {
		t.Errorf("statistics run logged no latency; log output:\n%s", buf.String())
	}
}

func TestDispatchOutsideRootIsFatal(t *testing.T) {
	f := newDispatcherFixture(t, nil)
	outside := filepath.Join(t.TempDir(), "stray.txt")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	f.disp.Dispatch(event(fsevent.KindModify, outside))
	f.disp.Wait()

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.fatals) != 1 {
		t.Fatalf("fatal called %d times, want 1", len(f.fatals))
	}
	if !errors.Is(f.fatals[0], ErrOutsideRoot) {
		t.Errorf("fatal error = %v, want ErrOutsideRoot", f.fatals[0])
	}
}

func TestRunStopsOnChannelClose(t *testing.T) {
	f := newDispatcherFixture(t, nil)
	src := f.writeSource(t, "a.txt", "via run")

	events := make(chan fsevent.Event, 1)
	events <- event(fsevent.KindCreate, src)
	close(events)

	done := make(chan struct{})
	go func() {
		f.disp.Run(context.Background(), events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after channel close")
	}
	f.disp.Wait()

	if _, err := os.Stat(filepath.Join(f.dst, "a.txt")); err != nil {
		t.Errorf("event via Run not mirrored: %v", err)
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Microsecond, "250µs"},
		{time.Millisecond, "1ms"},
		{1500 * time.Millisecond, "1500ms"},
	}
	for _, tt := range tests {
		if got := formatElapsed(tt.d); got != tt.want {
			t.Errorf("formatElapsed(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
