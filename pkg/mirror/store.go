// Package mirror implements the synchronization engine: it turns tagged
// filesystem-change notifications into deduplicated, ordered mutations of the
// target tree, backed by a bounded cache of per-path metadata.
package mirror

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultStoreCapacity bounds the metadata cache. Eviction under pressure is
// acceptable: a false miss only costs one redundant copy, never correctness,
// because the filesystem remains the ground truth.
const DefaultStoreCapacity = 32768

// EntryKind distinguishes file entries from directory entries.
type EntryKind int

const (
	// EntryFile marks a regular file.
	EntryFile EntryKind = iota
	// EntryDir marks a directory.
	EntryDir
)

func (k EntryKind) String() string {
	switch k {
	case EntryFile:
		return "file"
	case EntryDir:
		return "dir"
	default:
		return fmt.Sprintf("EntryKind(%d)", int(k))
	}
}

// PathMetadata is the cached state of one tracked source path.
//
// A directory entry never carries a fingerprint. A file entry's fingerprint,
// once set, reflects the content last known to be mirrored and is the only
// basis for "identical, skip copy" decisions.
type PathMetadata struct {
	Kind           EntryKind
	Fingerprint    Fingerprint
	HasFingerprint bool
	LastChange     time.Time
}

// Store is a fixed-capacity LRU cache mapping a canonical absolute source
// path to its PathMetadata. It is safe for concurrent use.
type Store struct {
	cache *lru.Cache[string, PathMetadata]
}

// NewStore creates a Store holding at most capacity entries. Non-positive
// capacities fall back to the default.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultStoreCapacity
	}
	// lru.New only fails for non-positive sizes, which the guard rules out.
	cache, _ := lru.New[string, PathMetadata](capacity)
	return &Store{cache: cache}
}

// Lookup returns the metadata for path and marks the entry recently used.
func (s *Store) Lookup(path string) (PathMetadata, bool) {
	return s.cache.Get(path)
}

// UpsertFile records a file entry with the given fingerprint, refreshing its
// change time.
func (s *Store) UpsertFile(path string, fp Fingerprint) {
	s.cache.Add(path, PathMetadata{
		Kind:           EntryFile,
		Fingerprint:    fp,
		HasFingerprint: true,
		LastChange:     time.Now(),
	})
}

// UpsertFileUnhashed records a file entry whose content could not be read.
// A later successful copy fills in the fingerprint.
func (s *Store) UpsertFileUnhashed(path string) {
	s.cache.Add(path, PathMetadata{
		Kind:       EntryFile,
		LastChange: time.Now(),
	})
}

// UpsertDir records a directory entry.
func (s *Store) UpsertDir(path string) {
	s.cache.Add(path, PathMetadata{
		Kind:       EntryDir,
		LastChange: time.Now(),
	})
}

// Remove drops the entry for path, if any.
func (s *Store) Remove(path string) {
	s.cache.Remove(path)
}

// Move transfers the entry from oldPath to newPath, preserving the
// fingerprint and refreshing the change time. It reports whether an entry
// existed under oldPath.
func (s *Store) Move(oldPath, newPath string) bool {
	md, ok := s.cache.Get(oldPath)
	if !ok {
		return false
	}
	s.cache.Remove(oldPath)
	md.LastChange = time.Now()
	s.cache.Add(newPath, md)
	return true
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	return s.cache.Len()
}
