package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewIntent_HashStability(t *testing.T) {
	origin := Origin{World: NewWorldID("prod", "orders"), InstanceKey: "order-1", Height: 4, Seq: 0}
	spec := &EffectSpec{
		Pipeline:       PipelineEffect,
		Service:        "payment",
		Method:         "charge",
		Params:         map[string]interface{}{"amount": 100, "currency": "USD"},
		CorrelationKey: "charge-order-1",
	}

	first, err := NewIntent(spec, origin)
	assert.NoError(t, err)
	second, err := NewIntent(spec, origin)
	assert.NoError(t, err)
	assert.Equal(t, first.Hash, second.Hash, "identical spec and origin must hash identically")
	assert.NotEmpty(t, first.Hash)
}

func TestNewIntent_HashDiscriminates(t *testing.T) {
	origin := Origin{World: NewWorldID("prod", "orders"), InstanceKey: "order-1", Height: 4}
	base := &EffectSpec{
		Pipeline: PipelineEffect,
		Service:  "payment",
		Method:   "charge",
		Params:   map[string]interface{}{"amount": 100},
	}
	baseIntent, err := NewIntent(base, origin)
	assert.NoError(t, err)

	testCases := []struct {
		description string
		spec        *EffectSpec
		origin      Origin
	}{
		{
			description: "different params",
			spec: &EffectSpec{
				Pipeline: PipelineEffect,
				Service:  "payment",
				Method:   "charge",
				Params:   map[string]interface{}{"amount": 101},
			},
			origin: origin,
		},
		{
			description: "different origin height",
			spec:        base,
			origin:      Origin{World: NewWorldID("prod", "orders"), InstanceKey: "order-1", Height: 5},
		},
		{
			description: "different origin instance",
			spec:        base,
			origin:      Origin{World: NewWorldID("prod", "orders"), InstanceKey: "order-2", Height: 4},
		},
		{
			description: "different emission seq",
			spec:        base,
			origin:      Origin{World: NewWorldID("prod", "orders"), InstanceKey: "order-1", Height: 4, Seq: 1},
		},
	}
	for _, testCase := range testCases {
		intent, err := NewIntent(testCase.spec, testCase.origin)
		assert.NoError(t, err, testCase.description)
		assert.NotEqual(t, baseIntent.Hash, intent.Hash, testCase.description)
	}
}

func TestCanonicalBytes_MapOrderIndependence(t *testing.T) {
	left := map[string]interface{}{"a": 1, "b": "x", "nested": map[string]interface{}{"k": true}}
	right := map[string]interface{}{"nested": map[string]interface{}{"k": true}, "b": "x", "a": 1}

	leftBytes, err := CanonicalBytes(left)
	assert.NoError(t, err)
	rightBytes, err := CanonicalBytes(right)
	assert.NoError(t, err)
	assert.Equal(t, string(leftBytes), string(rightBytes))
}

func TestIntent_MessageID(t *testing.T) {
	due := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	intent, err := NewIntent(&EffectSpec{Pipeline: PipelineTimer, DueAt: &due}, Origin{World: NewWorldID("prod", "w"), Height: 1})
	assert.NoError(t, err)
	assert.Equal(t, intent.Hash, intent.MessageID())
}
