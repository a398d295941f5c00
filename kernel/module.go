package kernel

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/viant/continuum/model"
	"github.com/viant/structology/conv"
)

// Event is what a module sees when it is stepped: either a routed ingress
// event or the receipt resolving one of its correlation slots.  Time and
// height come from the journaled record, never from the wall clock.
type Event struct {
	Type           string                 `json:"type"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
	Receipt        *model.Receipt         `json:"receipt,omitempty"`
	CorrelationKey string                 `json:"correlationKey,omitempty"`
	At             time.Time              `json:"at"`
	Height         uint64                 `json:"height"`
}

// StepOutput is a module's verdict for one step.
type StepOutput struct {
	// State replaces the instance's module-owned state.
	State map[string]interface{}

	// Effects are the intents to emit, in order.
	Effects []*model.EffectSpec

	// Done reports the workflow finished; the instance turns Terminal once
	// its last awaiting slot resolves.
	Done bool
}

// Module is a workflow state machine hosted by the kernel.  Step must be a
// pure function of its inputs – no clock, no randomness, no IO – or replay
// verification will fail the world.
type Module interface {
	Name() string
	Step(instance *model.Instance, event *Event) (*StepOutput, error)
}

// Modules is a registry of workflow modules available to a kernel.
type Modules struct {
	services map[string]Module
	mux      sync.RWMutex
}

// NewModules creates an empty module registry.
func NewModules() *Modules {
	return &Modules{services: make(map[string]Module)}
}

// Register registers a module.
func (m *Modules) Register(module Module) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.services[module.Name()] = module
}

// Lookup returns a module by name, nil when absent.
func (m *Modules) Lookup(name string) Module {
	m.mux.RLock()
	defer m.mux.RUnlock()
	return m.services[name]
}

// TypedStep is a module step over a typed state struct.
type TypedStep[S any] func(state *S, event *Event) (*StepOutput, error)

type typedModule[S any] struct {
	name      string
	step      TypedStep[S]
	converter *conv.Converter
}

// Typed wraps a step over a typed state struct into a Module, converting the
// instance's map state in and the returned state back out.
func Typed[S any](name string, step TypedStep[S]) Module {
	options := conv.DefaultOptions()
	options.ClonePointerData = true
	options.IgnoreUnmapped = true
	options.AccessUnexported = true
	return &typedModule[S]{name: name, step: step, converter: conv.NewConverter(options)}
}

func (m *typedModule[S]) Name() string {
	return m.name
}

func (m *typedModule[S]) Step(instance *model.Instance, event *Event) (*StepOutput, error) {
	var state S
	if len(instance.State) > 0 {
		if err := m.converter.Convert(instance.State, &state); err != nil {
			return nil, fmt.Errorf("module %s: failed to convert state: %w", m.name, err)
		}
	}
	output, err := m.step(&state, event)
	if err != nil {
		return nil, err
	}
	if output == nil {
		output = &StepOutput{}
	}
	if output.State == nil {
		data, err := json.Marshal(&state)
		if err != nil {
			return nil, fmt.Errorf("module %s: failed to convert state: %w", m.name, err)
		}
		var stateMap map[string]interface{}
		if err := json.Unmarshal(data, &stateMap); err != nil {
			return nil, fmt.Errorf("module %s: failed to convert state: %w", m.name, err)
		}
		output.State = stateMap
	}
	return output, nil
}
