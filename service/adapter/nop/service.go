package nop

import (
	"context"
	"reflect"

	"github.com/viant/continuum/service/adapter"
)

const name = "nop"

// Service is a no-op adapter, useful as a probe effect and in tests.
type Service struct{}

type Input struct{}

type Output struct{}

// New creates a new nop adapter
func New() *Service {
	return &Service{}
}

// Name returns the adapter name
func (s *Service) Name() string {
	return name
}

// Methods returns the adapter methods
func (s *Service) Methods() adapter.Signatures {
	return []adapter.Signature{
		{
			Name:   "nop",
			Input:  reflect.TypeOf(&Input{}),
			Output: reflect.TypeOf(&Output{}),
		},
	}
}

// Method returns the specified method
func (s *Service) Method(name string) (adapter.Executable, error) {
	return s.nop, nil
}

// does nothing
func (s *Service) nop(ctx context.Context, in, out interface{}) error {
	return nil
}
