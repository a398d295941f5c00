package adapter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/continuum/model"
	"github.com/viant/continuum/service/adapter"
	"github.com/viant/continuum/service/adapter/nop"
	"github.com/viant/continuum/service/adapter/printer"
)

func TestInvoker_Invoke(t *testing.T) {
	registry := adapter.NewRegistry()
	registry.Register(nop.New())
	registry.Register(printer.New())
	invoker := adapter.NewInvoker(registry)
	ctx := context.Background()

	testCases := []struct {
		description string
		intent      *model.Intent
		expectErr   bool
		expect      map[string]interface{}
	}{
		{
			description: "nop invocation",
			intent:      &model.Intent{Pipeline: model.PipelineEffect, Service: "nop", Method: "nop"},
			expect:      map[string]interface{}{},
		},
		{
			description: "printer with converted params",
			intent: &model.Intent{
				Pipeline: model.PipelineEffect,
				Service:  "printer",
				Method:   "print",
				Params:   map[string]interface{}{"message": "hello"},
			},
			expect: map[string]interface{}{"printed": true},
		},
		{
			description: "unknown service",
			intent:      &model.Intent{Pipeline: model.PipelineEffect, Service: "missing", Method: "run"},
			expectErr:   true,
		},
		{
			description: "unknown method",
			intent:      &model.Intent{Pipeline: model.PipelineEffect, Service: "printer", Method: "missing"},
			expectErr:   true,
		},
	}

	for _, testCase := range testCases {
		output, err := invoker.Invoke(ctx, testCase.intent)
		if testCase.expectErr {
			assert.Error(t, err, testCase.description)
			continue
		}
		if !assert.NoError(t, err, testCase.description) {
			continue
		}
		assert.Equal(t, testCase.expect, output, testCase.description)
	}
}
