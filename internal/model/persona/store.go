package persona

import "sync"

// Store exposes the live persona to services and HTTP handlers.
type Store interface {
	Current() Persona
	Replace(p Persona)
}

// MemoryStore implements Store with a mutex guarded value.
type MemoryStore struct {
	mu      sync.RWMutex
	current Persona
}

// NewMemoryStore returns a MemoryStore holding the supplied persona.
func NewMemoryStore(p Persona) *MemoryStore {
	return &MemoryStore{current: p.Clone()}
}

// Current returns a copy of the live persona.
func (s *MemoryStore) Current() Persona {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Replace swaps in a new persona.
func (s *MemoryStore) Replace(p Persona) {
	s.mu.Lock()
	s.current = p.Clone()
	s.mu.Unlock()
}
