package exec

import (
	"context"
	"reflect"
	"strings"

	"github.com/viant/continuum/service/adapter"
)

const Name = "system/exec"

func (s *Service) Name() string {
	return Name
}

func (s *Service) Methods() adapter.Signatures {
	return []adapter.Signature{
		{
			Name:   "execute",
			Input:  reflect.TypeOf(&Input{}),
			Output: reflect.TypeOf(&Output{}),
		}}
}

func (s *Service) execute(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*Input)
	if !ok {
		return adapter.NewInvalidInputError(in)
	}
	output, ok := out.(*Output)
	if !ok {
		return adapter.NewInvalidOutputError(out)
	}
	return s.Execute(ctx, input, output)
}

// Method returns method by Name
func (s *Service) Method(name string) (adapter.Executable, error) {
	switch strings.ToLower(name) {
	case "execute":
		return s.execute, nil
	default:
		return nil, adapter.NewMethodNotFoundError(name)
	}
}
