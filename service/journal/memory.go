package journal

import (
	"context"
	"fmt"
	"sync"

	"github.com/viant/continuum/model"
)

// MemoryStore is an in-memory journal store for tests and single-process use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]*model.Record
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory journal store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]*model.Record)}
}

// Append commits record at expectedHeight+1.
func (s *MemoryStore) Append(_ context.Context, world model.WorldID, expectedHeight uint64, record *model.Record) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.records[world.Key()]
	head := uint64(len(log))
	if head != expectedHeight {
		return 0, fmt.Errorf("world %s at height %d, expected %d: %w", world, head, expectedHeight, ErrStaleHeight)
	}
	stored := *record
	stored.Height = head + 1
	s.records[world.Key()] = append(log, &stored)
	return stored.Height, nil
}

// Head returns the last committed height.
func (s *MemoryStore) Head(_ context.Context, world model.WorldID) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.records[world.Key()])), nil
}

// Get returns the record at a height.
func (s *MemoryStore) Get(_ context.Context, world model.WorldID, height uint64) (*model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.records[world.Key()]
	if height == 0 || height > uint64(len(log)) {
		return nil, fmt.Errorf("world %s height %d: %w", world, height, ErrNotFound)
	}
	out := *log[height-1]
	return &out, nil
}

// Tail returns all records above from.
func (s *MemoryStore) Tail(_ context.Context, world model.WorldID, from uint64) ([]*model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.records[world.Key()]
	if from >= uint64(len(log)) {
		return nil, nil
	}
	var result []*model.Record
	for _, record := range log[from:] {
		out := *record
		result = append(result, &out)
	}
	return result, nil
}
