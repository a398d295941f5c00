package blob

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store used by tests and single-process setups.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[Ref][]byte
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory content store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[Ref][]byte)}
}

// Put stores bytes under their content ref.
func (s *MemoryStore) Put(_ context.Context, data []byte) (Ref, error) {
	ref := RefOf(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[ref]; !ok {
		stored := make([]byte, len(data))
		copy(stored, data)
		s.objects[ref] = stored
	}
	return ref, nil
}

// Get returns stored bytes or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, ref Ref) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[ref]
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", ref, ErrNotFound)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Exists reports presence of ref.
func (s *MemoryStore) Exists(_ context.Context, ref Ref) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[ref]
	return ok, nil
}

// Delete removes content; exposed so tests can simulate a missing root.
func (s *MemoryStore) Delete(_ context.Context, ref Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, ref)
}
