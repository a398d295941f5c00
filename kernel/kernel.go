// Package kernel implements the deterministic fold at the heart of a world:
// apply(state, record) -> (state', intents).  The fold reads time and data
// exclusively from journaled records, iterates maps in sorted order, and
// performs no IO – folding the same journal twice yields byte-identical
// states, which replay verification depends on.
package kernel

import (
	"fmt"

	"github.com/viant/continuum/model"
)

// Kernel folds journal records over world state using registered modules.
type Kernel struct {
	modules *Modules
}

// New creates a kernel over the module registry.
func New(modules *Modules) *Kernel {
	if modules == nil {
		modules = NewModules()
	}
	return &Kernel{modules: modules}
}

// Modules returns the module registry.
func (k *Kernel) Modules() *Modules {
	return k.modules
}

// Result is the outcome of folding one record.
type Result struct {
	// State is the folded state at the record's height.
	State *State

	// Intents are newly emitted intents for the caller to journal and then
	// hand to the delivery pipelines.  They are not yet part of the state;
	// folding their intent records is what makes them inflight.
	Intents []*model.Intent

	// Dropped lists self-correlating emissions rejected during the fold.
	// The rejection itself is deterministic state: it is recorded on the
	// emitting instance and reproduced identically on replay.
	Dropped []*SelfCorrelationError
}

// Apply folds a single record.  The record's height must be exactly one above
// the state's.
func (k *Kernel) Apply(state *State, record *model.Record) (*Result, error) {
	if record.Height != state.Height+1 {
		return nil, fmt.Errorf("world %s at height %d, record %d: %w", state.World, state.Height, record.Height, ErrHeightMismatch)
	}
	next := state.Clone()
	next.Height = record.Height
	result := &Result{State: next}

	switch record.Kind {
	case model.KindIngress:
		if err := k.applyIngress(next, record, result); err != nil {
			return nil, err
		}
	case model.KindIntent:
		k.applyIntent(next, record.Intent)
	case model.KindReceipt:
		if err := k.applyReceipt(next, record, result); err != nil {
			return nil, err
		}
	case model.KindSnapshotMarker:
		next.LastSnapshotHeight = record.Snapshot.Height
	case model.KindManifestChange:
		manifest := record.Manifest.Manifest
		if err := manifest.Init(); err != nil {
			return nil, fmt.Errorf("world %s height %d: %w", next.World, record.Height, err)
		}
		next.Manifest = manifest
		next.ManifestHash = record.Manifest.ManifestHash
	default:
		return nil, fmt.Errorf("world %s height %d: unknown record kind %q", next.World, record.Height, record.Kind)
	}
	return result, nil
}

func (k *Kernel) applyIngress(next *State, record *model.Record, result *Result) error {
	ingress := record.Ingress
	if _, seen := next.Seen[ingress.MessageID]; seen {
		return nil
	}
	next.Seen[ingress.MessageID] = record.Height
	if next.Manifest == nil {
		return nil
	}
	route := next.Manifest.Route(ingress.EventType)
	if route == nil {
		return nil
	}
	key, ok := route.InstanceKey(ingress.Payload)
	if !ok {
		return nil
	}

	event := &Event{
		Type:    ingress.EventType,
		Payload: ingress.Payload,
		At:      record.At,
		Height:  record.Height,
	}
	instance := next.Instances[key]
	if correlation, correlated := route.CorrelationValue(ingress.Payload); correlated {
		// A correlated event only ever resolves a matching slot; anything
		// else is a no-op, including events for instances that do not exist.
		if instance == nil {
			return nil
		}
		if _, held := instance.AwaitingSlot(correlation); !held {
			return nil
		}
		delete(instance.Awaiting, correlation)
		event.CorrelationKey = correlation
		return k.step(next, instance, event, result)
	}

	if instance == nil {
		instance = &model.Instance{
			Key:             key,
			Module:          route.Module,
			Status:          model.InstanceCreated,
			CreatedAtHeight: record.Height,
		}
		next.Instances[key] = instance
	}
	if !instance.IsRunnable() {
		return nil
	}
	return k.step(next, instance, event, result)
}

func (k *Kernel) applyIntent(next *State, intent *model.Intent) {
	if _, receipted := next.Receipted[intent.Hash]; receipted {
		return
	}
	copied := *intent
	next.Inflight[intent.Hash] = &copied
	if intent.CorrelationKey == "" {
		return
	}
	instance := next.Instances[intent.Origin.InstanceKey]
	if instance == nil {
		return
	}
	if instance.Awaiting == nil {
		instance.Awaiting = make(map[string]string)
	}
	instance.Awaiting[intent.CorrelationKey] = intent.Hash
	instance.Status = model.InstanceAwaitingReceipt
	instance.UpdatedAtHeight = next.Height
}

func (k *Kernel) applyReceipt(next *State, record *model.Record, result *Result) error {
	receipt := record.Receipt
	intent, inflight := next.Inflight[receipt.IntentHash]
	if !inflight {
		// Late or duplicate receipt: already resolved, or for a slot the
		// instance abandoned.  Ignored idempotently.
		return nil
	}
	delete(next.Inflight, receipt.IntentHash)
	next.Receipted[receipt.IntentHash] = record.Height

	instance := next.Instances[intent.Origin.InstanceKey]
	if instance == nil {
		return nil
	}
	if intent.CorrelationKey == "" {
		// Fire-and-forget effect: bookkeeping only, the instance does not
		// observe the outcome.
		return nil
	}
	if intent.Pipeline == model.PipelineFabric {
		// A fabric receipt is the delivery acknowledgement; the correlation
		// slot is resolved by the correlated response event, not by this.
		return nil
	}
	if held, ok := instance.AwaitingSlot(intent.CorrelationKey); !ok || held != intent.Hash {
		return nil
	}
	delete(instance.Awaiting, intent.CorrelationKey)
	event := &Event{
		Type:           "receipt",
		Receipt:        receipt,
		CorrelationKey: intent.CorrelationKey,
		At:             record.At,
		Height:         record.Height,
	}
	return k.step(next, instance, event, result)
}

// step runs the instance's module over the event and folds the verdict back
// into the state, materializing emitted effects as hashed intents.
func (k *Kernel) step(next *State, instance *model.Instance, event *Event, result *Result) error {
	module := k.modules.Lookup(instance.Module)
	if module == nil {
		instance.LastError = fmt.Sprintf("module %s not found", instance.Module)
		instance.UpdatedAtHeight = next.Height
		return nil
	}
	output, err := module.Step(instance.Clone(), event)
	if err != nil {
		// A module error is domain data, not a fold failure: it is recorded
		// on the instance and the fold commits, identically on replay.
		instance.LastError = err.Error()
		instance.UpdatedAtHeight = next.Height
		return nil
	}
	instance.State = output.State
	instance.Done = instance.Done || output.Done
	instance.LastError = ""
	instance.UpdatedAtHeight = next.Height

	seq := len(result.Intents)
	for _, spec := range output.Effects {
		intent, err := model.NewIntent(spec, model.Origin{
			World:       next.World,
			InstanceKey: instance.Key,
			Height:      next.Height,
			Seq:         seq,
		})
		if err != nil {
			return fmt.Errorf("world %s height %d: %w", next.World, next.Height, err)
		}
		if dropped := k.checkSelfCorrelation(next, instance, intent); dropped != nil {
			instance.LastError = dropped.Error()
			result.Dropped = append(result.Dropped, dropped)
			continue
		}
		result.Intents = append(result.Intents, intent)
		seq++
	}
	k.refreshStatus(instance)
	return nil
}

// checkSelfCorrelation rejects a correlated fabric intent whose resolution
// event would be routed back to the emitting instance itself: it would await
// an answer only it could produce.
func (k *Kernel) checkSelfCorrelation(next *State, instance *model.Instance, intent *model.Intent) *SelfCorrelationError {
	if intent.CorrelationKey == "" || intent.Pipeline != model.PipelineFabric {
		return nil
	}
	if intent.Destination == nil || *intent.Destination != next.World {
		return nil
	}
	if next.Manifest == nil {
		return nil
	}
	route := next.Manifest.Route(intent.EventType)
	if route == nil {
		return nil
	}
	if key, ok := route.InstanceKey(intent.Params); ok && key == instance.Key {
		return &SelfCorrelationError{
			InstanceKey:    instance.Key,
			CorrelationKey: intent.CorrelationKey,
			IntentHash:     intent.Hash,
		}
	}
	return nil
}

func (k *Kernel) refreshStatus(instance *model.Instance) {
	switch {
	case len(instance.Awaiting) > 0:
		instance.Status = model.InstanceAwaitingReceipt
	case instance.Done:
		instance.Status = model.InstanceTerminal
	default:
		instance.Status = model.InstanceActive
	}
}

// CheckQuiescence reports whether the world may change manifests: no intent
// inflight and every instance terminal.  The returned *QuiescenceError names
// every blocker.
func (k *Kernel) CheckQuiescence(state *State) error {
	var blocking []string
	for _, key := range state.InstanceKeys() {
		if state.Instances[key].Status != model.InstanceTerminal {
			blocking = append(blocking, key)
		}
	}
	hashes := state.InflightHashes()
	if len(blocking) == 0 && len(hashes) == 0 {
		return nil
	}
	return &QuiescenceError{InstanceKeys: blocking, IntentHashes: hashes}
}
