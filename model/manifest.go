package model

import (
	"fmt"

	"github.com/viant/continuum/model/keypath"
	"gopkg.in/yaml.v3"
)

// Manifest binds a world to its workflow modules and routing rules.  It is
// authored in YAML; the active manifest may only change through a journaled
// ManifestChange record, gated on world quiescence.
type Manifest struct {
	Name    string   `json:"name" yaml:"name"`
	Version string   `json:"version" yaml:"version"`
	Modules []string `json:"modules" yaml:"modules"`
	Routes  []*Route `json:"routes" yaml:"routes"`
}

// Route maps an ingress event type onto a workflow module instance.  KeyPath
// selects the instance key from the payload; CorrelationPath (optional)
// selects the correlation value used to resolve awaiting slots.
type Route struct {
	EventType       string `json:"eventType" yaml:"eventType"`
	Module          string `json:"module" yaml:"module"`
	KeyPath         string `json:"keyPath" yaml:"keyPath"`
	CorrelationPath string `json:"correlationPath,omitempty" yaml:"correlationPath,omitempty"`

	keyPath         *keypath.Path
	correlationPath *keypath.Path
}

// DecodeManifest parses YAML bytes into a validated manifest with compiled
// route selectors.
func DecodeManifest(data []byte) (*Manifest, error) {
	manifest := &Manifest{}
	if err := yaml.Unmarshal(data, manifest); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	if err := manifest.Init(); err != nil {
		return nil, err
	}
	return manifest, nil
}

// Init compiles route selectors; it must be called after deserialization
// (DecodeManifest and the journal's JSON decoding both do so).
func (m *Manifest) Init() error {
	if m.Name == "" {
		return fmt.Errorf("manifest name cannot be empty")
	}
	seen := map[string]bool{}
	for _, route := range m.Routes {
		if route.EventType == "" {
			return fmt.Errorf("manifest %s: route eventType cannot be empty", m.Name)
		}
		if seen[route.EventType] {
			return fmt.Errorf("manifest %s: duplicate route for event type %q", m.Name, route.EventType)
		}
		seen[route.EventType] = true
		if route.Module == "" {
			return fmt.Errorf("manifest %s: route %s has no module", m.Name, route.EventType)
		}
		if route.KeyPath == "" {
			return fmt.Errorf("manifest %s: route %s has no keyPath", m.Name, route.EventType)
		}
		compiled, err := keypath.Parse(route.KeyPath)
		if err != nil {
			return fmt.Errorf("manifest %s: route %s keyPath: %w", m.Name, route.EventType, err)
		}
		route.keyPath = compiled
		if route.CorrelationPath != "" {
			compiled, err = keypath.Parse(route.CorrelationPath)
			if err != nil {
				return fmt.Errorf("manifest %s: route %s correlationPath: %w", m.Name, route.EventType, err)
			}
			route.correlationPath = compiled
		}
	}
	return nil
}

// Route returns the routing rule for an event type, or nil when the manifest
// does not handle it.
func (m *Manifest) Route(eventType string) *Route {
	for _, route := range m.Routes {
		if route.EventType == eventType {
			return route
		}
	}
	return nil
}

// Hash returns the manifest's content-derived hash.
func (m *Manifest) Hash() (string, error) {
	return CanonicalHash(m)
}

// InstanceKey extracts the instance key for an ingress payload; ok is false
// when the payload does not carry the selector.
func (r *Route) InstanceKey(payload map[string]interface{}) (string, bool) {
	if r.keyPath == nil {
		return "", false
	}
	return r.keyPath.SelectString(payload)
}

// CorrelationValue extracts the correlation value for an ingress payload.
func (r *Route) CorrelationValue(payload map[string]interface{}) (string, bool) {
	if r.correlationPath == nil {
		return "", false
	}
	return r.correlationPath.SelectString(payload)
}
