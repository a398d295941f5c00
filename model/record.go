package model

import (
	"time"
)

// Kind discriminates journal record payloads.
type Kind string

const (
	// KindIngress is an externally produced event normalized into the journal.
	KindIngress Kind = "ingress"

	// KindIntent records an emitted effect/timer/fabric intent.
	KindIntent Kind = "intent"

	// KindReceipt records the terminal outcome of a previously journaled intent.
	KindReceipt Kind = "receipt"

	// KindSnapshotMarker references a snapshot envelope persisted in the blob store.
	KindSnapshotMarker Kind = "snapshotMarker"

	// KindManifestChange switches the world to a new manifest.
	KindManifestChange Kind = "manifestChange"
)

// Record is a single immutable journal entry.  Height is assigned by the
// journal on append and increases strictly by one per world.  Exactly one of
// the payload pointers is populated, matching Kind.
type Record struct {
	Height   uint64          `json:"height"`
	Kind     Kind            `json:"kind"`
	At       time.Time       `json:"at"`
	Ingress  *Ingress        `json:"ingress,omitempty"`
	Intent   *Intent         `json:"intent,omitempty"`
	Receipt  *Receipt        `json:"receipt,omitempty"`
	Snapshot *SnapshotMarker `json:"snapshot,omitempty"`
	Manifest *ManifestChange `json:"manifest,omitempty"`
}

// Ingress is a normalized external event: API submissions, timer fires and
// fabric deliveries all enter the journal through this shape.  MessageID is
// the journaling dedupe key; folding the record marks the id as seen so a
// redelivered inbox entry can never be journaled twice.
type Ingress struct {
	EventType string                 `json:"eventType"`
	MessageID string                 `json:"messageId"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Source    string                 `json:"source,omitempty"`
}

// ReceiptStatus is the terminal outcome class of an intent.
type ReceiptStatus string

const (
	ReceiptOK        ReceiptStatus = "ok"
	ReceiptError     ReceiptStatus = "error"
	ReceiptTimeout   ReceiptStatus = "timeout"
	ReceiptDelivered ReceiptStatus = "delivered"
)

// Receipt is the terminal outcome of an intent, linked by the intent hash.
// Adapter failures and timeouts arrive through the same shape – they are
// domain data for the owning workflow instance, not runtime faults.
type Receipt struct {
	IntentHash     string                 `json:"intentHash"`
	Status         ReceiptStatus          `json:"status"`
	Output         map[string]interface{} `json:"output,omitempty"`
	Error          string                 `json:"error,omitempty"`
	CorrelationKey string                 `json:"correlationKey,omitempty"`
}

// SnapshotMarker references a snapshot envelope covering the journal up to
// (and including) Height.
type SnapshotMarker struct {
	Ref    string `json:"ref"`
	Height uint64 `json:"height"`
}

// ManifestChange replaces the active manifest.  It may only be journaled when
// the world is quiescent – the kernel enforces the gate before append.
type ManifestChange struct {
	ManifestHash string    `json:"manifestHash"`
	Manifest     *Manifest `json:"manifest"`
}

// NewIngressRecord builds an unjournaled ingress record.
func NewIngressRecord(at time.Time, ingress *Ingress) *Record {
	return &Record{Kind: KindIngress, At: at, Ingress: ingress}
}

// NewIntentRecord builds an unjournaled intent record.
func NewIntentRecord(at time.Time, intent *Intent) *Record {
	return &Record{Kind: KindIntent, At: at, Intent: intent}
}

// NewReceiptRecord builds an unjournaled receipt record.
func NewReceiptRecord(at time.Time, receipt *Receipt) *Record {
	return &Record{Kind: KindReceipt, At: at, Receipt: receipt}
}
