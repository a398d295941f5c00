package inbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/viant/continuum/model"
)

type memoryBox struct {
	entries []*Entry
	seen    map[string]bool
	nextSeq uint64
}

// Memory is an in-memory inbox for tests and single-process use.
type Memory struct {
	mu    sync.Mutex
	boxes map[string]*memoryBox
}

// Ensure Memory implements Service
var _ Service = (*Memory)(nil)

// NewMemory creates an empty in-memory inbox.
func NewMemory() *Memory {
	return &Memory{boxes: make(map[string]*memoryBox)}
}

func (m *Memory) box(world model.WorldID) *memoryBox {
	key := world.Key()
	box, ok := m.boxes[key]
	if !ok {
		box = &memoryBox{seen: make(map[string]bool), nextSeq: 1}
		m.boxes[key] = box
	}
	return box
}

// Enqueue inserts an entry unless its id was already seen.
func (m *Memory) Enqueue(_ context.Context, world model.WorldID, entry *Entry) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("entry id cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	box := m.box(world)
	if box.seen[entry.ID] {
		return fmt.Errorf("world %s message %s: %w", world, entry.ID, ErrDuplicate)
	}
	stored := *entry
	stored.Seq = box.nextSeq
	box.nextSeq++
	box.seen[entry.ID] = true
	box.entries = append(box.entries, &stored)
	return nil
}

// Drain returns up to max unacknowledged entries in seq order.
func (m *Memory) Drain(_ context.Context, world model.WorldID, max int) ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	box := m.box(world)
	count := len(box.entries)
	if max > 0 && count > max {
		count = max
	}
	var result []*Entry
	for _, entry := range box.entries[:count] {
		out := *entry
		result = append(result, &out)
	}
	return result, nil
}

// Ack removes entries by id, keeping the ids in the dedupe set.
func (m *Memory) Ack(_ context.Context, world model.WorldID, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	box := m.box(world)
	acked := make(map[string]bool, len(ids))
	for _, id := range ids {
		acked[id] = true
	}
	var remaining []*Entry
	for _, entry := range box.entries {
		if !acked[entry.ID] {
			remaining = append(remaining, entry)
		}
	}
	box.entries = remaining
	return nil
}
