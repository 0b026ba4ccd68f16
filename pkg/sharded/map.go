package sharded

import "sync"

type mapShard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// Map is a concurrent map from string keys to values of type V, striped
// across a fixed number of shards.
type Map[V any] struct {
	shards [numShards]*mapShard[V]
}

// NewMap returns an empty Map.
func NewMap[V any]() *Map[V] {
	m := &Map[V]{}
	for i := range m.shards {
		m.shards[i] = &mapShard[V]{items: make(map[string]V)}
	}
	return m
}

func (m *Map[V]) shard(key string) *mapShard[V] {
	return m.shards[shardIndex(key)]
}

// Store adds or replaces the value for key.
func (m *Map[V]) Store(key string, value V) {
	shard := m.shard(key)
	shard.mu.Lock()
	shard.items[key] = value
	shard.mu.Unlock()
}

// Load retrieves the value for key and whether it was present.
func (m *Map[V]) Load(key string) (value V, ok bool) {
	shard := m.shard(key)
	shard.mu.RLock()
	value, ok = shard.items[key]
	shard.mu.RUnlock()
	return value, ok
}

// Has reports whether key is present.
func (m *Map[V]) Has(key string) bool {
	shard := m.shard(key)
	shard.mu.RLock()
	_, ok := shard.items[key]
	shard.mu.RUnlock()
	return ok
}

// LoadOrStore returns the existing value for key if present. Otherwise it
// stores and returns the given value. loaded is true if the value was loaded.
func (m *Map[V]) LoadOrStore(key string, value V) (actual V, loaded bool) {
	shard := m.shard(key)
	shard.mu.Lock()
	actual, loaded = shard.items[key]
	if !loaded {
		actual = value
		shard.items[key] = value
	}
	shard.mu.Unlock()
	return actual, loaded
}

// Delete removes key from the map.
func (m *Map[V]) Delete(key string) {
	shard := m.shard(key)
	shard.mu.Lock()
	delete(shard.items, key)
	shard.mu.Unlock()
}

// Count returns the total number of entries.
func (m *Map[V]) Count() int {
	count := 0
	for _, shard := range m.shards {
		shard.mu.RLock()
		count += len(shard.items)
		shard.mu.RUnlock()
	}
	return count
}

// Keys returns a snapshot of all keys. Order is not guaranteed.
func (m *Map[V]) Keys() []string {
	keys := make([]string, 0, m.Count())
	for _, shard := range m.shards {
		shard.mu.RLock()
		for k := range shard.items {
			keys = append(keys, k)
		}
		shard.mu.RUnlock()
	}
	return keys
}

// Range calls f sequentially for each key and value. If f returns false the
// iteration stops. One shard is locked at a time; f must not modify the map.
func (m *Map[V]) Range(f func(key string, value V) bool) {
	for _, shard := range m.shards {
		shard.mu.RLock()
		for k, v := range shard.items {
			if !f(k, v) {
				shard.mu.RUnlock()
				return
			}
		}
		shard.mu.RUnlock()
	}
}
