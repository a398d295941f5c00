package lease

import (
	"context"
	"fmt"
	"sync"

	"github.com/viant/continuum/model"
)

// MemoryStore is an in-memory lease store for tests and single-process use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory lease store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Get returns the lease record for a world.
func (s *MemoryStore) Get(_ context.Context, world model.WorldID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[world.Key()]
	if !ok {
		return nil, fmt.Errorf("world %s: %w", world, ErrNotFound)
	}
	out := *record
	return &out, nil
}

// Put stores the lease record.
func (s *MemoryStore) Put(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *record
	s.records[record.World.Key()] = &stored
	return nil
}
