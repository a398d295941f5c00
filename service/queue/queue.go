// Package queue implements the durable work queues behind the delivery
// pipelines.  Items are keyed by a content-derived idempotency key: an
// enqueue of an already-known key is a no-op, a completion is recorded in a
// dedupe table so retried deliveries collapse to one terminal outcome, and
// claims carry a TTL so work owned by a crashed worker flows back to pending.
package queue

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates no item exists for the key.
	ErrNotFound = errors.New("queue: item not found")

	// ErrNotClaimed indicates the item is not currently inflight.
	ErrNotClaimed = errors.New("queue: item not claimed")
)

// Item wraps a payload with its delivery bookkeeping.
type Item[T any] struct {
	Key        string    `json:"key"`
	Data       T         `json:"data"`
	Attempts   int       `json:"attempts"`
	Owner      string    `json:"owner,omitempty"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	ClaimedAt  time.Time `json:"claimedAt,omitempty"`
	ExpiresAt  time.Time `json:"expiresAt,omitempty"`
}

// Pipeline is a durable, idempotent work queue.  Every operation is keyed by
// the item's idempotency key so the at-least-once claim/retry machinery never
// produces more than one terminal outcome per key.
type Pipeline[T any] interface {
	// Enqueue adds an item unless its key is already pending, inflight or
	// complete.  It reports whether the item was actually added.
	Enqueue(ctx context.Context, key string, data *T) (bool, error)

	// Claim moves the oldest pending item to inflight for ttl, owned by owner.
	// It returns nil when nothing is pending.
	Claim(ctx context.Context, owner string, ttl time.Duration) (*Item[T], error)

	// Complete records the key in the dedupe table and drops the inflight
	// item.  It reports whether this call performed the completion; a repeat
	// for an already-complete key reports false with no error.
	Complete(ctx context.Context, key string) (bool, error)

	// Release returns an inflight item to pending, incrementing its attempts.
	Release(ctx context.Context, key string) error

	// RequeueExpired returns expired inflight items to pending and reports
	// how many it moved.
	RequeueExpired(ctx context.Context) (int, error)

	// IsComplete reports whether the key has a recorded terminal outcome.
	IsComplete(ctx context.Context, key string) (bool, error)
}
