package keypath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		description string
		input       string
		valid       bool
		segments    int
	}{
		{description: "single key", input: "orderId", valid: true, segments: 1},
		{description: "dotted path", input: "order.customer.id", valid: true, segments: 3},
		{description: "indexed path", input: "items[0].sku", valid: true, segments: 2},
		{description: "underscore and dash", input: "meta.request_id", valid: true, segments: 2},
		{description: "empty", input: "", valid: false},
		{description: "leading dot", input: ".order", valid: false},
		{description: "unclosed index", input: "items[0", valid: false},
		{description: "non numeric index", input: "items[x]", valid: false},
		{description: "trailing dot", input: "order.", valid: false},
	}

	for _, testCase := range testCases {
		path, err := Parse(testCase.input)
		if !testCase.valid {
			assert.Error(t, err, testCase.description)
			continue
		}
		if !assert.NoError(t, err, testCase.description) {
			continue
		}
		assert.Equal(t, testCase.segments, len(path.Segments), testCase.description)
	}
}

func TestPath_Select(t *testing.T) {
	payload := map[string]interface{}{
		"orderId": "o-42",
		"order": map[string]interface{}{
			"customer": map[string]interface{}{"id": "c-7"},
			"total":    float64(12),
		},
		"items": []interface{}{
			map[string]interface{}{"sku": "a"},
			map[string]interface{}{"sku": "b"},
		},
	}

	testCases := []struct {
		description string
		input       string
		expect      string
		found       bool
	}{
		{description: "top level", input: "orderId", expect: "o-42", found: true},
		{description: "nested", input: "order.customer.id", expect: "c-7", found: true},
		{description: "numeric coerced", input: "order.total", expect: "12", found: true},
		{description: "indexed", input: "items[1].sku", expect: "b", found: true},
		{description: "missing key", input: "order.missing", found: false},
		{description: "index out of range", input: "items[9].sku", found: false},
		{description: "index into map", input: "order[0]", found: false},
	}

	for _, testCase := range testCases {
		path, err := Parse(testCase.input)
		if !assert.NoError(t, err, testCase.description) {
			continue
		}
		actual, ok := path.SelectString(payload)
		assert.Equal(t, testCase.found, ok, testCase.description)
		if testCase.found {
			assert.Equal(t, testCase.expect, actual, testCase.description)
		}
	}
}
