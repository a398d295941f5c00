// Package snapshot persists point-in-time world state as a content-addressed
// envelope over named roots.  Snapshots are an optimization only: the journal
// remains the source of truth, and a snapshot that cannot prove all of its
// roots present is rejected outright rather than partially loaded.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/viant/continuum/internal/clock"
	"github.com/viant/continuum/kernel"
	"github.com/viant/continuum/model"
	"github.com/viant/continuum/service/blob"
	"github.com/viant/continuum/service/journal"
)

var (
	// ErrRootIncomplete indicates a snapshot root is missing from the blob
	// store; the snapshot is unusable, on write and on load alike.
	ErrRootIncomplete = errors.New("snapshot: root incomplete")

	// ErrReceiptHorizon indicates an intent journaled below the snapshot
	// height still lacks a terminal receipt, so the snapshot may not become
	// the baseline: truncating there would lose the inflight obligation.
	ErrReceiptHorizon = errors.New("snapshot: receipt horizon violation")

	// ErrNoBaseline indicates a world has no promoted baseline yet.
	ErrNoBaseline = errors.New("snapshot: no baseline")
)

const (
	rootManifest  = "manifest"
	rootInstances = "instances"
	rootDelivery  = "delivery"
)

// Root names one content-addressed constituent of a snapshot.
type Root struct {
	Name string   `json:"name"`
	Ref  blob.Ref `json:"ref"`
}

// Envelope is the snapshot's manifest of roots.  It is itself stored
// content-addressed; the envelope ref identifies the snapshot.
type Envelope struct {
	World        model.WorldID `json:"world"`
	Height       uint64        `json:"height"`
	ManifestHash string        `json:"manifestHash,omitempty"`
	Roots        []*Root       `json:"roots"`
	CreatedAt    time.Time     `json:"createdAt"`
}

type manifestRoot struct {
	ManifestHash string          `json:"manifestHash,omitempty"`
	Manifest     *model.Manifest `json:"manifest,omitempty"`
}

type instancesRoot struct {
	Instances map[string]*model.Instance `json:"instances,omitempty"`
}

type deliveryRoot struct {
	Inflight           map[string]*model.Intent `json:"inflight,omitempty"`
	Receipted          map[string]uint64        `json:"receipted,omitempty"`
	Seen               map[string]uint64        `json:"seen,omitempty"`
	LastSnapshotHeight uint64                   `json:"lastSnapshotHeight,omitempty"`
}

// Service creates, loads and promotes snapshots over a blob store.
type Service struct {
	blobs     blob.Store
	baselines BaselineStore
}

// New creates a snapshot service.
func New(blobs blob.Store, baselines BaselineStore) *Service {
	return &Service{blobs: blobs, baselines: baselines}
}

// Create persists the state's roots and envelope and returns the envelope
// ref.  Every root is written and verified present before the envelope is
// accepted.
func (s *Service) Create(ctx context.Context, state *kernel.State) (*Envelope, blob.Ref, error) {
	envelope := &Envelope{
		World:        state.World,
		Height:       state.Height,
		ManifestHash: state.ManifestHash,
		CreatedAt:    clock.Now().UTC(),
	}
	parts := []struct {
		name  string
		value interface{}
	}{
		{rootManifest, &manifestRoot{ManifestHash: state.ManifestHash, Manifest: state.Manifest}},
		{rootInstances, &instancesRoot{Instances: state.Instances}},
		{rootDelivery, &deliveryRoot{
			Inflight:           state.Inflight,
			Receipted:          state.Receipted,
			Seen:               state.Seen,
			LastSnapshotHeight: state.LastSnapshotHeight,
		}},
	}
	for _, part := range parts {
		data, err := model.CanonicalBytes(part.value)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode root %s for %s: %w", part.name, state.World, err)
		}
		ref, err := s.blobs.Put(ctx, data)
		if err != nil {
			return nil, "", fmt.Errorf("failed to store root %s for %s: %w", part.name, state.World, err)
		}
		envelope.Roots = append(envelope.Roots, &Root{Name: part.name, Ref: ref})
	}
	// Fail closed before the envelope becomes reachable.
	if err := s.verifyRoots(ctx, envelope); err != nil {
		return nil, "", err
	}
	data, err := model.CanonicalBytes(envelope)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode envelope for %s: %w", state.World, err)
	}
	ref, err := s.blobs.Put(ctx, data)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store envelope for %s: %w", state.World, err)
	}
	return envelope, ref, nil
}

// Load reads an envelope and reconstructs the state it captured, verifying
// every declared root resolves.
func (s *Service) Load(ctx context.Context, ref blob.Ref) (*Envelope, *kernel.State, error) {
	data, err := s.blobs.Get(ctx, ref)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read envelope %s: %w", ref, err)
	}
	envelope := &Envelope{}
	if err := json.Unmarshal(data, envelope); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal envelope %s: %w", ref, err)
	}
	if err := s.verifyRoots(ctx, envelope); err != nil {
		return nil, nil, err
	}
	state := kernel.Genesis(envelope.World)
	state.Height = envelope.Height
	for _, root := range envelope.Roots {
		data, err := s.blobs.Get(ctx, root.Ref)
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot %s root %s: %w", ref, root.Name, err)
		}
		switch root.Name {
		case rootManifest:
			part := &manifestRoot{}
			if err := json.Unmarshal(data, part); err != nil {
				return nil, nil, fmt.Errorf("snapshot %s root %s: %w", ref, root.Name, err)
			}
			if part.Manifest != nil {
				if err := part.Manifest.Init(); err != nil {
					return nil, nil, fmt.Errorf("snapshot %s root %s: %w", ref, root.Name, err)
				}
			}
			state.Manifest = part.Manifest
			state.ManifestHash = part.ManifestHash
		case rootInstances:
			part := &instancesRoot{}
			if err := json.Unmarshal(data, part); err != nil {
				return nil, nil, fmt.Errorf("snapshot %s root %s: %w", ref, root.Name, err)
			}
			if part.Instances != nil {
				state.Instances = part.Instances
			}
		case rootDelivery:
			part := &deliveryRoot{}
			if err := json.Unmarshal(data, part); err != nil {
				return nil, nil, fmt.Errorf("snapshot %s root %s: %w", ref, root.Name, err)
			}
			if part.Inflight != nil {
				state.Inflight = part.Inflight
			}
			if part.Receipted != nil {
				state.Receipted = part.Receipted
			}
			if part.Seen != nil {
				state.Seen = part.Seen
			}
			state.LastSnapshotHeight = part.LastSnapshotHeight
		}
	}
	return envelope, state, nil
}

func (s *Service) verifyRoots(ctx context.Context, envelope *Envelope) error {
	for _, root := range envelope.Roots {
		exists, err := s.blobs.Exists(ctx, root.Ref)
		if err != nil {
			return fmt.Errorf("failed to check root %s: %w", root.Name, err)
		}
		if !exists {
			return fmt.Errorf("world %s height %d root %s (%s): %w", envelope.World, envelope.Height, root.Name, root.Ref, ErrRootIncomplete)
		}
	}
	return nil
}

// PromoteBaseline makes a snapshot the world's replay floor.  It refuses when
// any intent journaled at or below the snapshot height has no terminal
// receipt anywhere in the journal.
func (s *Service) PromoteBaseline(ctx context.Context, world model.WorldID, ref blob.Ref, log *journal.Service) error {
	envelope, _, err := s.Load(ctx, ref)
	if err != nil {
		return err
	}
	if envelope.World != world {
		return fmt.Errorf("snapshot %s belongs to %s, not %s", ref, envelope.World, world)
	}
	records, err := log.Tail(ctx, world, 0)
	if err != nil {
		return err
	}
	receipted := make(map[string]bool)
	for _, record := range records {
		if record.Kind == model.KindReceipt {
			receipted[record.Receipt.IntentHash] = true
		}
	}
	for _, record := range records {
		if record.Kind != model.KindIntent || record.Height > envelope.Height {
			continue
		}
		if !receipted[record.Intent.Hash] {
			return fmt.Errorf("world %s: intent %s at height %d unresolved below snapshot height %d: %w",
				world, record.Intent.Hash, record.Height, envelope.Height, ErrReceiptHorizon)
		}
	}
	return s.baselines.Put(ctx, world, ref)
}

// Restore returns the world's state at the journal head: the baseline
// snapshot (or genesis when none) with the journal tail folded on top.
func (s *Service) Restore(ctx context.Context, world model.WorldID, aKernel *kernel.Kernel, log *journal.Service) (*kernel.State, error) {
	state := kernel.Genesis(world)
	ref, err := s.baselines.Get(ctx, world)
	if err != nil && !errors.Is(err, ErrNoBaseline) {
		return nil, err
	}
	if err == nil {
		_, state, err = s.Load(ctx, ref)
		if err != nil {
			return nil, err
		}
	}
	tail, err := log.Tail(ctx, world, state.Height)
	if err != nil {
		return nil, err
	}
	for _, record := range tail {
		result, err := aKernel.Apply(state, record)
		if err != nil {
			return nil, err
		}
		state = result.State
	}
	return state, nil
}
