package fsevent

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestKindString(t *testing.T) {
	testCases := []struct {
		kind Kind
		want string
	}{
		{KindCreate, "create"},
		{KindModify, "modify"},
		{KindRenameFrom, "rename-from"},
		{KindRenameTo, "rename-to"},
		{KindRemove, "remove"},
		{KindAccess, "access"},
		{KindOther, "other"},
	}
	for _, tc := range testCases {
		if got := tc.kind.String(); got != tc.want {
			t.Errorf("Kind(%d).String() = %q; want %q", tc.kind, got, tc.want)
		}
	}
}

func TestConvert(t *testing.T) {
	testCases := []struct {
		name string
		op   fsnotify.Op
		want Kind
	}{
		{"Create", fsnotify.Create, KindCreate},
		{"Write", fsnotify.Write, KindModify},
		{"Remove", fsnotify.Remove, KindRemove},
		{"Rename", fsnotify.Rename, KindRenameFrom},
		{"Chmod", fsnotify.Chmod, KindAccess},
		{"Unknown", 0, KindOther},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ev := convert(fsnotify.Event{Name: "/src/a.txt", Op: tc.op})
			if ev.Kind != tc.want {
				t.Errorf("convert(%v).Kind = %v; want %v", tc.op, ev.Kind, tc.want)
			}
			if len(ev.Paths) != 1 || ev.Paths[0] != "/src/a.txt" {
				t.Errorf("convert(%v).Paths = %v; want [/src/a.txt]", tc.op, ev.Paths)
			}
			if ev.Time.IsZero() {
				t.Error("expected a non-zero capture time")
			}
		})
	}
}

// waitForEvent drains the watcher until an event for path with the wanted
// kind arrives, or the timeout expires.
func waitForEvent(t *testing.T, w *Watcher, path string, kind Kind, timeout time.Duration) bool {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-w.Events():
			if ev.Kind == kind && len(ev.Paths) == 1 && ev.Paths[0] == path {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

func TestWatcherDeliversEvents(t *testing.T) {
	root := t.TempDir()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	w, err := NewWatcher(root, logger)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t.Cleanup(func() {
		cancel()
		w.Close()
	})

	if err := w.Start(ctx, root); err != nil {
		t.Fatalf("Start: %v", err)
	}

	file := filepath.Join(root, "a.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if !waitForEvent(t, w, file, KindCreate, 5*time.Second) {
		t.Fatal("expected a create notification for a.txt")
	}

	if err := os.WriteFile(file, []byte("xy"), 0644); err != nil {
		t.Fatal(err)
	}
	if !waitForEvent(t, w, file, KindModify, 5*time.Second) {
		t.Fatal("expected a modify notification for a.txt")
	}

	if err := os.Remove(file); err != nil {
		t.Fatal(err)
	}
	if !waitForEvent(t, w, file, KindRemove, 5*time.Second) {
		t.Fatal("expected a remove notification for a.txt")
	}
}

func TestWatcherRegistersNewDirectories(t *testing.T) {
	root := t.TempDir()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	w, err := NewWatcher(root, logger)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t.Cleanup(func() {
		cancel()
		w.Close()
	})

	if err := w.Start(ctx, root); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if !waitForEvent(t, w, sub, KindCreate, 5*time.Second) {
		t.Fatal("expected a create notification for the new directory")
	}

	// A file inside the freshly created directory must be seen too.
	nested := filepath.Join(sub, "nested.txt")
	if err := os.WriteFile(nested, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if !waitForEvent(t, w, nested, KindCreate, 5*time.Second) {
		t.Fatal("expected a create notification inside the new directory")
	}
}

func TestWatcherRewatchesRecreatedDirectory(t *testing.T) {
	root := t.TempDir()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	w, err := NewWatcher(root, logger)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t.Cleanup(func() {
		cancel()
		w.Close()
	})

	if err := w.Start(ctx, root); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if !waitForEvent(t, w, sub, KindCreate, 5*time.Second) {
		t.Fatal("expected a create notification for the directory")
	}

	if err := os.RemoveAll(sub); err != nil {
		t.Fatal(err)
	}
	if !waitForEvent(t, w, sub, KindRemove, 5*time.Second) {
		t.Fatal("expected a remove notification for the directory")
	}

	// Recreating the directory must register a fresh watch, not be skipped
	// as already registered.
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if !waitForEvent(t, w, sub, KindCreate, 5*time.Second) {
		t.Fatal("expected a create notification for the recreated directory")
	}

	nested := filepath.Join(sub, "nested.txt")
	if err := os.WriteFile(nested, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if !waitForEvent(t, w, nested, KindCreate, 5*time.Second) {
		t.Fatal("expected a create notification inside the recreated directory")
	}
}

func TestIsRenameDestination(t *testing.T) {
	dir := t.TempDir()
	gone := filepath.Join(dir, "gone.txt")
	now := time.Now()

	if !isRenameDestination(gone, now, now.Add(10*time.Millisecond)) {
		t.Error("creation inside the window with a vanished source was not paired")
	}
	if isRenameDestination(gone, now, now.Add(renamePairWindow+time.Second)) {
		t.Error("creation outside the window was paired")
	}
	if isRenameDestination("", time.Time{}, now) {
		t.Error("creation was paired without any preceding rename")
	}

	present := filepath.Join(dir, "present.txt")
	if err := os.WriteFile(present, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if isRenameDestination(present, now, now.Add(10*time.Millisecond)) {
		t.Error("creation was paired while the rename source still exists")
	}
}
