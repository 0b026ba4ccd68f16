// Package sharded provides lock-striped concurrent map and set types keyed by
// strings. Striping keeps contention low when many goroutines touch unrelated
// paths at once.
package sharded

import "hash/fnv"

// numShards must be a power of 2 for the bitwise AND modulus below.
const numShards = 64

// shardIndex calculates the shard index for a given key using FNV-1a.
func shardIndex(key string) int {
	h := fnv.New32a()
	// Write never returns an error for FNV-1a.
	h.Write([]byte(key))
	return int(h.Sum32() & uint32(numShards-1))
}
