package adapter

import (
	"sync"

	"github.com/viant/x"
)

// Registry holds the effect adapters available to a runtime, plus a go-type
// registry for adapter payload types.
type Registry struct {
	types    *x.Registry
	services map[string]Service
	mux      sync.RWMutex
}

// Types returns the payload type registry.
func (r *Registry) Types() *x.Registry {
	return r.types
}

// Lookup returns an adapter by name, nil when absent.
func (r *Registry) Lookup(name string) Service {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return r.services[name]
}

// Register registers an adapter.
func (r *Registry) Register(service Service) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.services[service.Name()] = service
}

// Names returns the registered adapter names.
func (r *Registry) Names() []string {
	r.mux.RLock()
	defer r.mux.RUnlock()
	var names []string
	for name := range r.services {
		names = append(names, name)
	}
	return names
}

// NewRegistry creates an adapter registry, optionally seeding payload types.
func NewRegistry(goTypes ...*x.Type) *Registry {
	ret := &Registry{
		types:    x.NewRegistry(),
		services: make(map[string]Service),
	}
	for _, t := range goTypes {
		if t != nil {
			ret.types.Register(t)
		}
	}
	return ret
}
