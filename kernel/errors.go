package kernel

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrHeightMismatch indicates a record was folded out of order.
	ErrHeightMismatch = errors.New("kernel: record height mismatch")

	// ErrNoManifest indicates an ingress arrived before any manifest.
	ErrNoManifest = errors.New("kernel: no active manifest")

	// ErrSelfCorrelation indicates an instance emitted a correlated intent
	// that would be routed back to itself, a guaranteed deadlock.
	ErrSelfCorrelation = errors.New("kernel: self correlation cycle")
)

// SelfCorrelationError describes a rejected self-correlating emission.  The
// intent is dropped deterministically and the rejection is recorded on the
// instance, so replaying the same journal reproduces the same drop.
type SelfCorrelationError struct {
	InstanceKey    string
	CorrelationKey string
	IntentHash     string
}

func (e *SelfCorrelationError) Error() string {
	return fmt.Sprintf("instance %s awaits correlation %q from itself: %v", e.InstanceKey, e.CorrelationKey, ErrSelfCorrelation)
}

func (e *SelfCorrelationError) Is(target error) bool {
	return target == ErrSelfCorrelation
}

// QuiescenceError reports why a manifest change cannot proceed: the named
// instances have not reached the terminal status and the named intents are
// still awaiting receipts.
type QuiescenceError struct {
	InstanceKeys []string
	IntentHashes []string
}

func (e *QuiescenceError) Error() string {
	var parts []string
	if len(e.InstanceKeys) > 0 {
		parts = append(parts, fmt.Sprintf("non-terminal instances: %s", strings.Join(e.InstanceKeys, ", ")))
	}
	if len(e.IntentHashes) > 0 {
		parts = append(parts, fmt.Sprintf("inflight intents: %s", strings.Join(e.IntentHashes, ", ")))
	}
	return "world not quiescent: " + strings.Join(parts, "; ")
}
