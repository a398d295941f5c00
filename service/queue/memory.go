package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/viant/continuum/internal/clock"
)

// Memory is an in-memory Pipeline for tests and single-process use.
type Memory[T any] struct {
	mu       sync.Mutex
	pending  []*Item[T]
	inflight map[string]*Item[T]
	complete map[string]bool
}

// Ensure Memory implements Pipeline
var _ Pipeline[any] = (*Memory[any])(nil)

// NewMemory creates an empty in-memory pipeline.
func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{
		inflight: make(map[string]*Item[T]),
		complete: make(map[string]bool),
	}
}

// Enqueue adds an item unless its key is already known.
func (m *Memory[T]) Enqueue(_ context.Context, key string, data *T) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("key cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.complete[key] {
		return false, nil
	}
	if _, ok := m.inflight[key]; ok {
		return false, nil
	}
	for _, item := range m.pending {
		if item.Key == key {
			return false, nil
		}
	}
	m.pending = append(m.pending, &Item[T]{Key: key, Data: *data, EnqueuedAt: clock.Now()})
	return true, nil
}

// Claim moves the oldest pending item to inflight.
func (m *Memory[T]) Claim(_ context.Context, owner string, ttl time.Duration) (*Item[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return nil, nil
	}
	item := m.pending[0]
	m.pending = m.pending[1:]
	now := clock.Now()
	item.Owner = owner
	item.ClaimedAt = now
	item.ExpiresAt = now.Add(ttl)
	m.inflight[item.Key] = item
	out := *item
	return &out, nil
}

// Complete records the terminal outcome for the key.
func (m *Memory[T]) Complete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.complete[key] {
		return false, nil
	}
	m.complete[key] = true
	delete(m.inflight, key)
	return true, nil
}

// Release returns an inflight item to pending.
func (m *Memory[T]) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.inflight[key]
	if !ok {
		return fmt.Errorf("key %s: %w", key, ErrNotClaimed)
	}
	delete(m.inflight, key)
	item.Owner = ""
	item.ClaimedAt = time.Time{}
	item.ExpiresAt = time.Time{}
	item.Attempts++
	m.pending = append(m.pending, item)
	return nil
}

// RequeueExpired returns expired inflight items to pending.
func (m *Memory[T]) RequeueExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := clock.Now()
	moved := 0
	for key, item := range m.inflight {
		if now.After(item.ExpiresAt) {
			delete(m.inflight, key)
			item.Owner = ""
			item.ClaimedAt = time.Time{}
			item.ExpiresAt = time.Time{}
			item.Attempts++
			m.pending = append(m.pending, item)
			moved++
		}
	}
	return moved, nil
}

// IsComplete reports whether the key has a recorded terminal outcome.
func (m *Memory[T]) IsComplete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.complete[key], nil
}
