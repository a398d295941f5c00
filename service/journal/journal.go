// Package journal implements the append-only record log that is a world's
// sole source of truth.  Heights are contiguous and strictly increasing;
// every append presents the writer's lease epoch and the head it believes
// is current, so a fenced or lagging writer can never fork history.
package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/viant/continuum/model"
	"github.com/viant/continuum/service/lease"
)

var (
	// ErrStaleHeight indicates the expected head no longer matches the journal.
	ErrStaleHeight = errors.New("journal: stale height")

	// ErrNotFound indicates no record exists at the requested height.
	ErrNotFound = errors.New("journal: record not found")
)

// Store abstracts raw journal persistence.  Append performs the
// expected-height compare-and-swap under its own critical section; lease
// arbitration happens one level up in the Service.
type Store interface {
	// Append commits record at expectedHeight+1, failing with ErrStaleHeight
	// when the head has moved.
	Append(ctx context.Context, world model.WorldID, expectedHeight uint64, record *model.Record) (uint64, error)

	// Head returns the height of the last committed record, 0 when empty.
	Head(ctx context.Context, world model.WorldID) (uint64, error)

	// Get returns the record at a height.
	Get(ctx context.Context, world model.WorldID, height uint64) (*model.Record, error)

	// Tail returns all records with height > from, in height order.
	Tail(ctx context.Context, world model.WorldID, from uint64) ([]*model.Record, error)
}

// Service is the epoch-fenced journal facade used by the rest of the runtime.
type Service struct {
	store Store
	guard lease.Guard
}

// New creates a journal service over store, fencing every append with guard.
func New(store Store, guard lease.Guard) *Service {
	return &Service{store: store, guard: guard}
}

// Append commits a record at expectedHeight+1 after validating the writer's
// epoch.  The fence check and the height compare-and-swap together guarantee
// a single linear history even when a deposed writer is still running.
func (s *Service) Append(ctx context.Context, world model.WorldID, epoch, expectedHeight uint64, record *model.Record) (uint64, error) {
	if record == nil {
		return 0, fmt.Errorf("record cannot be nil")
	}
	if s.guard != nil {
		if err := s.guard.Check(ctx, world, epoch); err != nil {
			return 0, err
		}
	}
	return s.store.Append(ctx, world, expectedHeight, record)
}

// Head returns the current head height, 0 for an empty journal.
func (s *Service) Head(ctx context.Context, world model.WorldID) (uint64, error) {
	return s.store.Head(ctx, world)
}

// Get returns the record at a height.
func (s *Service) Get(ctx context.Context, world model.WorldID, height uint64) (*model.Record, error) {
	return s.store.Get(ctx, world, height)
}

// Tail returns all records above from, in order.
func (s *Service) Tail(ctx context.Context, world model.WorldID, from uint64) ([]*model.Record, error) {
	return s.store.Tail(ctx, world, from)
}
