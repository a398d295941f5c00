package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/viant/continuum/model"
	"github.com/viant/structology/conv"
)

// Invoker resolves an intent's service/method against the registry, converts
// the journaled params into the method's typed input and runs it.
type Invoker struct {
	registry  *Registry
	converter *conv.Converter
}

// NewInvoker creates an invoker over the registry.
func NewInvoker(registry *Registry) *Invoker {
	options := conv.DefaultOptions()
	options.ClonePointerData = true
	options.IgnoreUnmapped = true
	options.AccessUnexported = true
	return &Invoker{registry: registry, converter: conv.NewConverter(options)}
}

// Invoke runs the effect described by the intent and returns the method
// output flattened back into a map, ready to journal as receipt output.
func (i *Invoker) Invoke(ctx context.Context, intent *model.Intent) (map[string]interface{}, error) {
	service := i.registry.Lookup(intent.Service)
	if service == nil {
		return nil, fmt.Errorf("service %v not found", intent.Service)
	}
	if intent.Method == "" {
		return nil, fmt.Errorf("method not found for service %v", intent.Service)
	}
	method, err := service.Method(intent.Method)
	if err != nil {
		return nil, fmt.Errorf("failed to find method %v for service %v: %w", intent.Method, intent.Service, err)
	}
	signature := service.Methods().Lookup(intent.Method)
	if signature == nil {
		return nil, fmt.Errorf("missing signature for %v.%v", intent.Service, intent.Method)
	}

	input := newInstancePtr(signature.Input)
	if len(intent.Params) > 0 {
		if err := i.converter.Convert(intent.Params, input); err != nil {
			return nil, fmt.Errorf("failed to convert input for %v.%v: %w", intent.Service, intent.Method, err)
		}
	}
	output := newInstancePtr(signature.Output)
	if err := method(ctx, input, output); err != nil {
		return nil, err
	}
	var outputMap map[string]interface{}
	data, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("failed to convert output for %v.%v: %w", intent.Service, intent.Method, err)
	}
	if err := json.Unmarshal(data, &outputMap); err != nil {
		return nil, fmt.Errorf("failed to convert output for %v.%v: %w", intent.Service, intent.Method, err)
	}
	return outputMap, nil
}

func newInstancePtr(t reflect.Type) interface{} {
	if t == nil {
		return &struct{}{}
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return reflect.New(t).Interface()
}
