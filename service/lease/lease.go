// Package lease implements epoch-fenced single-writer ownership of worlds.
// An epoch is issued on acquisition and strictly increases across the world's
// lifetime; every mutating operation elsewhere in the runtime presents its
// believed epoch and is rejected with ErrFenced when the lease has moved on.
// The epoch check – not any in-process mutex – is what keeps two workers from
// ever both mutating the same world, even across process boundaries.
package lease

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/viant/continuum/internal/clock"
	"github.com/viant/continuum/model"
)

var (
	// ErrFenced indicates the presented epoch (or holder) is no longer current.
	ErrFenced = errors.New("lease: fenced")

	// ErrHeld indicates an unexpired lease exists for the world.
	ErrHeld = errors.New("lease: held")

	// ErrNotFound indicates no lease record exists for the world.
	ErrNotFound = errors.New("lease: not found")
)

// Record is the persisted lease state for one world.
type Record struct {
	World     model.WorldID `json:"world"`
	Holder    string        `json:"holder"`
	Epoch     uint64        `json:"epoch"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

// Expired reports whether the lease has lapsed at the given instant.
func (r *Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Store abstracts lease persistence.  Implementations only need Get/Put –
// arbitration happens in the Manager under a per-world critical section.
type Store interface {
	Get(ctx context.Context, world model.WorldID) (*Record, error)
	Put(ctx context.Context, record *Record) error
}

// Guard validates that a caller's believed epoch is still the current one.
// The journal, queues and baseline promotion all consult a Guard before
// committing a mutation.
type Guard interface {
	Check(ctx context.Context, world model.WorldID, epoch uint64) error
}

// Manager arbitrates lease acquisition and renewal over a Store.
type Manager struct {
	store Store
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Ensure Manager implements Guard
var _ Guard = (*Manager)(nil)

// NewManager creates a lease manager over the supplied store.
func NewManager(store Store) *Manager {
	return &Manager{store: store, locks: make(map[string]*sync.Mutex)}
}

func (m *Manager) worldLock(world model.WorldID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := world.Key()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	return lock
}

// Acquire grants the world to worker for ttl, issuing epoch previous+1.  It
// fails with ErrHeld while any unexpired lease exists; the current holder is
// no exception and extends through Renew instead.  Re-acquiring an expired
// lease always advances the epoch so a revenant holder can never pass a fence
// check.
func (m *Manager) Acquire(ctx context.Context, world model.WorldID, worker string, ttl time.Duration) (*Record, error) {
	if worker == "" {
		return nil, fmt.Errorf("worker id cannot be empty")
	}
	lock := m.worldLock(world)
	lock.Lock()
	defer lock.Unlock()

	now := clock.Now()
	current, err := m.store.Get(ctx, world)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	var epoch uint64 = 1
	if current != nil {
		if !current.Expired(now) {
			return nil, fmt.Errorf("world %s held by %s until %s: %w", world, current.Holder, current.ExpiresAt.Format(time.RFC3339), ErrHeld)
		}
		epoch = current.Epoch + 1
	}
	record := &Record{World: world, Holder: worker, Epoch: epoch, ExpiresAt: now.Add(ttl)}
	if err := m.store.Put(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist lease for %s: %w", world, err)
	}
	return record, nil
}

// Renew extends the lease when holder and epoch still match; a mismatch
// returns ErrFenced and the caller must stop mutating the world.
func (m *Manager) Renew(ctx context.Context, world model.WorldID, worker string, epoch uint64, ttl time.Duration) (*Record, error) {
	lock := m.worldLock(world)
	lock.Lock()
	defer lock.Unlock()

	current, err := m.store.Get(ctx, world)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("world %s has no lease: %w", world, ErrFenced)
		}
		return nil, err
	}
	now := clock.Now()
	if current.Holder != worker || current.Epoch != epoch || current.Expired(now) {
		return nil, fmt.Errorf("world %s lease at epoch %d held by %s: %w", world, current.Epoch, current.Holder, ErrFenced)
	}
	record := &Record{World: world, Holder: worker, Epoch: epoch, ExpiresAt: now.Add(ttl)}
	if err := m.store.Put(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist lease renewal for %s: %w", world, err)
	}
	return record, nil
}

// Release ends the lease early.  Only the current holder at the current epoch
// may release; anything else is a fencing violation.
func (m *Manager) Release(ctx context.Context, world model.WorldID, worker string, epoch uint64) error {
	lock := m.worldLock(world)
	lock.Lock()
	defer lock.Unlock()

	current, err := m.store.Get(ctx, world)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if current.Holder != worker || current.Epoch != epoch {
		return fmt.Errorf("world %s lease at epoch %d held by %s: %w", world, current.Epoch, current.Holder, ErrFenced)
	}
	record := &Record{World: world, Holder: worker, Epoch: epoch, ExpiresAt: clock.Now()}
	return m.store.Put(ctx, record)
}

// Check implements Guard: the presented epoch must match the current,
// unexpired lease.
func (m *Manager) Check(ctx context.Context, world model.WorldID, epoch uint64) error {
	current, err := m.store.Get(ctx, world)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("world %s has no lease: %w", world, ErrFenced)
		}
		return err
	}
	if current.Epoch != epoch {
		return fmt.Errorf("world %s at epoch %d, presented %d: %w", world, current.Epoch, epoch, ErrFenced)
	}
	if current.Expired(clock.Now()) {
		return fmt.Errorf("world %s lease expired at %s: %w", world, current.ExpiresAt.Format(time.RFC3339), ErrFenced)
	}
	return nil
}

// Current returns the current lease record, or ErrNotFound.
func (m *Manager) Current(ctx context.Context, world model.WorldID) (*Record, error) {
	return m.store.Get(ctx, world)
}
