package registry

import "sync"

// scopeLocks serializes writers per scope key. Two concurrent registers on
// the same subject must not both observe the same latest version; registers
// on different subjects proceed in parallel.
type scopeLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newScopeLocks() *scopeLocks {
	return &scopeLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for the scope key, creating it on first use.
// Locks are retained for the process lifetime; the population is bounded by
// the number of subjects ever written.
func (s *scopeLocks) lock(key string) func() {
	s.mu.Lock()
	m, exists := s.locks[key]
	if !exists {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}
