package benchmark

import "sync"

// Synchronized serializes access to a Store. UpdateIfEligible is the single mutation point;
// EMA updates do not commute, so callers must still submit observations in observation order.
type Synchronized struct {
	mu    sync.RWMutex
	store *Store
}

// NewSynchronized wraps store.
func NewSynchronized(store *Store) *Synchronized {
	return &Synchronized{store: store}
}

// Lookup returns the entry for key.
func (s *Synchronized) Lookup(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Lookup(key)
}

// UpdateIfEligible applies obs under the write lock.
func (s *Synchronized) UpdateIfEligible(obs Observation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.UpdateIfEligible(obs)
}

// Snapshot copies the state under the read lock.
func (s *Synchronized) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Snapshot()
}

// Restore replaces the state under the write lock.
func (s *Synchronized) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Restore(snap)
}

// Len reports the number of tracked keys.
func (s *Synchronized) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Len()
}

var (
	_ Reader = (*Synchronized)(nil)
	_ Writer = (*Synchronized)(nil)
)
