package botconfig

import "sync"

// Store is the single shared mutable configuration holder. Many readers, one
// writer: only the supervisor replaces the snapshot, and only after the new
// document has been validated.
type Store struct {
	mu      sync.RWMutex
	current Config
}

// NewStore creates a Store seeded with defaults.
func NewStore() *Store {
	return &Store{current: Default()}
}

// Snapshot returns a copy of the current configuration. The maps inside the
// snapshot must not be mutated by callers.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Replace swaps in a new configuration wholesale. Previous contents are
// discarded, not merged.
func (s *Store) Replace(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = cfg
}
