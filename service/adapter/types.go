// Package adapter defines the pluggable effect adapters the delivery workers
// invoke to run external work.  Adapters stay outside the deterministic fold:
// the kernel only ever sees their outcome as a journaled receipt.
package adapter

import (
	"context"
	"fmt"
	"reflect"
)

// Signatures is a lookup list of method signatures.
type Signatures []Signature

// Lookup returns the signature by name, nil when absent.
func (s Signatures) Lookup(name string) *Signature {
	for i := range s {
		sig := &s[i]
		if sig.Name == name {
			return sig
		}
	}
	return nil
}

// Signature describes a method's typed input and output.
type Signature struct {
	Name   string
	Input  reflect.Type
	Output reflect.Type
}

// Executable is an invocable adapter method.
type Executable func(ctx context.Context, input, output interface{}) error

// Service is an effect adapter exposing named methods.
type Service interface {
	Name() string
	Methods() Signatures
	Method(name string) (Executable, error)
}

func NewMethodNotFoundError(name string) error {
	return fmt.Errorf("method %v not found", name)
}

func NewInvalidInputError(in interface{}) error {
	return fmt.Errorf("invalid input %T", in)
}

func NewInvalidOutputError(in interface{}) error {
	return fmt.Errorf("invalid output %T", in)
}
