package sharded

// Set is a concurrent string set striped across a fixed number of shards.
type Set struct {
	m *Map[struct{}]
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{m: NewMap[struct{}]()}
}

// Store adds key to the set.
func (s *Set) Store(key string) {
	s.m.Store(key, struct{}{})
}

// Has reports whether key is in the set.
func (s *Set) Has(key string) bool {
	return s.m.Has(key)
}

// LoadOrStore adds key and reports whether it was already present.
func (s *Set) LoadOrStore(key string) (loaded bool) {
	_, loaded = s.m.LoadOrStore(key, struct{}{})
	return loaded
}

// Delete removes key from the set.
func (s *Set) Delete(key string) {
	s.m.Delete(key)
}

// Count returns the number of members.
func (s *Set) Count() int {
	return s.m.Count()
}

// Keys returns a snapshot of all members. Order is not guaranteed.
func (s *Set) Keys() []string {
	return s.m.Keys()
}
