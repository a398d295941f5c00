package model

import (
	"fmt"
	"strings"
)

// WorldID identifies a hosted world within a universe.  The zero value is not
// a valid identity.
type WorldID struct {
	Universe string `json:"universe"`
	Name     string `json:"name"`
}

// NewWorldID creates a world identity.
func NewWorldID(universe, name string) WorldID {
	return WorldID{Universe: universe, Name: name}
}

// Key returns the canonical storage key fragment for this world, used by
// every persisted layout (lease, baseline, journal, inbox).
func (w WorldID) Key() string {
	return w.Universe + "." + w.Name
}

// String implements fmt.Stringer.
func (w WorldID) String() string {
	return w.Key()
}

// IsZero reports whether the identity is unset.
func (w WorldID) IsZero() bool {
	return w.Universe == "" && w.Name == ""
}

// ParseWorldID parses a "universe.name" key back into a WorldID.
func ParseWorldID(key string) (WorldID, error) {
	index := strings.Index(key, ".")
	if index <= 0 || index == len(key)-1 {
		return WorldID{}, fmt.Errorf("invalid world key: %q", key)
	}
	return WorldID{Universe: key[:index], Name: key[index+1:]}, nil
}
