package printer

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/viant/continuum/service/adapter"
)

const name = "printer"

// Service prints effect messages to standard output.
type Service struct{}

type Input struct {
	Message string
}

type Output struct {
	Printed bool `json:"printed,omitempty"`
}

// New creates a new printer adapter
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
			Name:   "print",
			Input:  reflect.TypeOf(&Input{}),
			Output: reflect.TypeOf(&Output{}),
		},
	}
}

// Method returns the specified method
func (s *Service) Method(name string) (adapter.Executable, error) {
	switch strings.ToLower(name) {
	case "print":
		return s.print, nil
	default:
		return nil, adapter.NewMethodNotFoundError(name)
	}
}

func (s *Service) print(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*Input)
	if !ok {
		return adapter.NewInvalidInputError(in)
	}
	output, ok := out.(*Output)
	if !ok {
		return adapter.NewInvalidOutputError(out)
	}
	fmt.Println(input.Message)
	output.Printed = true
	return nil
}
