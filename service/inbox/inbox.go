// Package inbox implements the per-world ingress mailbox.  External
// submissions, fired timers, fabric deliveries and receipts all land here
// before the lease holder journals them.  The message-id check happens inside
// the same critical section as the enqueue, so two racing senders of the same
// message can never both insert an entry.
package inbox

import (
	"context"
	"errors"
	"time"

	"github.com/viant/continuum/model"
)

var (
	// ErrDuplicate indicates the message id was already enqueued for the world.
	ErrDuplicate = errors.New("inbox: duplicate message")
)

// EntryKind discriminates inbox payloads.
type EntryKind string

const (
	// EntryIngress carries a normalized external event or fabric delivery.
	EntryIngress EntryKind = "ingress"

	// EntryReceipt carries the terminal outcome of a dispatched intent.
	EntryReceipt EntryKind = "receipt"
)

// Entry is one queued inbox item.  ID is the dedupe key; Seq is assigned on
// enqueue and fixes the drain order.
type Entry struct {
	ID         string         `json:"id"`
	Kind       EntryKind      `json:"kind"`
	Ingress    *model.Ingress `json:"ingress,omitempty"`
	Receipt    *model.Receipt `json:"receipt,omitempty"`
	Seq        uint64         `json:"seq"`
	EnqueuedAt time.Time      `json:"enqueuedAt"`
}

// Service is a durable, deduplicating per-world mailbox.
type Service interface {
	// Enqueue inserts an entry unless its id was already seen for the world,
	// in which case it fails with ErrDuplicate.
	Enqueue(ctx context.Context, world model.WorldID, entry *Entry) error

	// Drain returns up to max unacknowledged entries in seq order, leaving
	// them in place until acknowledged.
	Drain(ctx context.Context, world model.WorldID, max int) ([]*Entry, error)

	// Ack removes entries by id.  The ids stay in the dedupe set, so a late
	// redelivery of an already-processed message is still refused.
	Ack(ctx context.Context, world model.WorldID, ids ...string) error
}

// NewIngressEntry builds an ingress entry keyed by the message id.
func NewIngressEntry(ingress *model.Ingress, at time.Time) *Entry {
	return &Entry{ID: ingress.MessageID, Kind: EntryIngress, Ingress: ingress, EnqueuedAt: at}
}

// NewReceiptEntry builds a receipt entry keyed by the intent hash.
func NewReceiptEntry(receipt *model.Receipt, at time.Time) *Entry {
	return &Entry{ID: "receipt-" + receipt.IntentHash, Kind: EntryReceipt, Receipt: receipt, EnqueuedAt: at}
}
