package mirror

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRetryingReaderSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	want := []byte("hello mirror")
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	r := NewRetryingReader(3, time.Millisecond, discardLogger())
	got, ok := r.Read(path)
	if !ok {
		t.Fatal("Read returned ok=false for a readable file")
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Read returned %q, want %q", got, want)
	}
}

func TestRetryingReaderMissingFileFailsFast(t *testing.T) {
	dir := t.TempDir()

	r := NewRetryingReader(5, time.Second, discardLogger())
	start := time.Now()
	data, ok := r.Read(filepath.Join(dir, "absent.txt"))
	elapsed := time.Since(start)

	if ok {
		t.Fatal("Read returned ok=true for a missing file")
	}
	if data != nil {
		t.Fatalf("Read returned data %q for a missing file", data)
	}
	// A missing file is not a lock conflict and must not trigger the retry
	// delay. With a 1s wait per attempt, any retrying would blow this bound.
	if elapsed > 500*time.Millisecond {
		t.Fatalf("Read took %v, expected an immediate failure", elapsed)
	}
}

func TestRetryingReaderEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	r := NewRetryingReader(0, 0, discardLogger())
	got, ok := r.Read(path)
	if !ok {
		t.Fatal("Read returned ok=false for an empty file")
	}
	if len(got) != 0 {
		t.Fatalf("Read returned %d bytes for an empty file", len(got))
	}
}
