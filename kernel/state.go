package kernel

import (
	"sort"

	"github.com/viant/continuum/model"
)

// State is the complete folded state of one world at a height.  It is derived
// exclusively from the journal: folding the same records always yields the
// same state, byte for byte under the canonical encoding.
type State struct {
	World        model.WorldID   `json:"world"`
	Height       uint64          `json:"height"`
	ManifestHash string          `json:"manifestHash,omitempty"`
	Manifest     *model.Manifest `json:"manifest,omitempty"`

	// Instances holds every workflow instance ever created, keyed by
	// instance key.  Terminal instances are retained.
	Instances map[string]*model.Instance `json:"instances,omitempty"`

	// Inflight maps intent hash to the journaled intent awaiting a receipt.
	Inflight map[string]*model.Intent `json:"inflight,omitempty"`

	// Receipted maps intent hash to the height of its terminal receipt.
	Receipted map[string]uint64 `json:"receipted,omitempty"`

	// Seen maps ingress message ids to the height they were journaled at;
	// it is the journaling half of exactly-once delivery.
	Seen map[string]uint64 `json:"seen,omitempty"`

	LastSnapshotHeight uint64 `json:"lastSnapshotHeight,omitempty"`
}

// Genesis returns the empty state of a world before any record.
func Genesis(world model.WorldID) *State {
	return &State{
		World:     world,
		Instances: make(map[string]*model.Instance),
		Inflight:  make(map[string]*model.Intent),
		Receipted: make(map[string]uint64),
		Seen:      make(map[string]uint64),
	}
}

// Clone returns a deep copy so a fold never aliases the committed state.
func (s *State) Clone() *State {
	out := *s
	out.Instances = make(map[string]*model.Instance, len(s.Instances))
	for key, instance := range s.Instances {
		out.Instances[key] = instance.Clone()
	}
	out.Inflight = make(map[string]*model.Intent, len(s.Inflight))
	for key, intent := range s.Inflight {
		copied := *intent
		out.Inflight[key] = &copied
	}
	out.Receipted = make(map[string]uint64, len(s.Receipted))
	for key, height := range s.Receipted {
		out.Receipted[key] = height
	}
	out.Seen = make(map[string]uint64, len(s.Seen))
	for key, height := range s.Seen {
		out.Seen[key] = height
	}
	return &out
}

// CanonicalBytes returns the canonical encoding of the state, the form
// compared byte-for-byte by replay verification.
func (s *State) CanonicalBytes() ([]byte, error) {
	return model.CanonicalBytes(s)
}

// InstanceKeys returns the instance keys in sorted order.
func (s *State) InstanceKeys() []string {
	keys := make([]string, 0, len(s.Instances))
	for key := range s.Instances {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// InflightHashes returns the inflight intent hashes in sorted order.
func (s *State) InflightHashes() []string {
	hashes := make([]string, 0, len(s.Inflight))
	for hash := range s.Inflight {
		hashes = append(hashes, hash)
	}
	sort.Strings(hashes)
	return hashes
}
