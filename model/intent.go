package model

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/viant/toolbox"
	"golang.org/x/crypto/blake2b"
)

// Pipeline identifies one of the three delivery pipelines.
type Pipeline string

const (
	PipelineEffect Pipeline = "effect"
	PipelineTimer  Pipeline = "timer"
	PipelineFabric Pipeline = "fabric"
)

// Origin records where an intent was emitted from.  It participates in the
// intent hash so that the same logical request from two instances (or from
// two heights of the same instance) never collides.
type Origin struct {
	World       WorldID `json:"world"`
	InstanceKey string  `json:"instanceKey"`
	Height      uint64  `json:"height"`
	Seq         int     `json:"seq"`
}

// Intent is an emitted request for external work.  Its hash, derived from the
// canonical encoding of the request and its origin, is the idempotency anchor
// shared by all three delivery pipelines.
type Intent struct {
	Hash     string   `json:"hash"`
	Pipeline Pipeline `json:"pipeline"`

	// Effect fields – adapter service/method invocation.
	Service string                 `json:"service,omitempty"`
	Method  string                 `json:"method,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`

	// Timer field.
	DueAt *time.Time `json:"dueAt,omitempty"`

	// Fabric fields.
	Destination *WorldID `json:"destination,omitempty"`
	EventType   string   `json:"eventType,omitempty"`

	Origin         Origin `json:"origin"`
	CorrelationKey string `json:"correlationKey,omitempty"`
	TimeoutMs      int    `json:"timeoutMs,omitempty"`
}

// MessageID returns the fabric dedupe key, defaulting to the intent hash.
func (i *Intent) MessageID() string {
	return i.Hash
}

// EffectSpec is an intent as emitted by a workflow module, before origin and
// hash assignment.  The kernel turns specs into intents during a fold.
type EffectSpec struct {
	Pipeline       Pipeline               `json:"pipeline"`
	Service        string                 `json:"service,omitempty"`
	Method         string                 `json:"method,omitempty"`
	Params         map[string]interface{} `json:"params,omitempty"`
	DueAt          *time.Time             `json:"dueAt,omitempty"`
	Destination    *WorldID               `json:"destination,omitempty"`
	EventType      string                 `json:"eventType,omitempty"`
	CorrelationKey string                 `json:"correlationKey,omitempty"`
	TimeoutMs      int                    `json:"timeoutMs,omitempty"`
}

// NewIntent materializes a spec emitted at the given origin and assigns the
// content-derived hash.
func NewIntent(spec *EffectSpec, origin Origin) (*Intent, error) {
	ret := &Intent{
		Pipeline:       spec.Pipeline,
		Service:        spec.Service,
		Method:         spec.Method,
		Params:         spec.Params,
		DueAt:          spec.DueAt,
		Destination:    spec.Destination,
		EventType:      spec.EventType,
		Origin:         origin,
		CorrelationKey: spec.CorrelationKey,
		TimeoutMs:      spec.TimeoutMs,
	}
	hash, err := HashOf(ret)
	if err != nil {
		return nil, err
	}
	ret.Hash = hash
	return ret, nil
}

// HashOf computes the content-derived intent hash: a blake2b-256 digest over
// the canonical encoding of the intent with its Hash field blanked.
func HashOf(intent *Intent) (string, error) {
	shallow := *intent
	shallow.Hash = ""
	data, err := CanonicalBytes(&shallow)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize intent: %w", err)
	}
	digest := blake2b.Sum256(data)
	return hex.EncodeToString(digest[:]), nil
}

// CanonicalBytes produces the canonical encoding used for every
// content-derived identity in the runtime: the value is flattened into a map,
// empty keys are dropped and the result is marshaled as JSON (whose map keys
// are emitted in sorted order).  Two semantically identical values therefore
// always yield identical bytes.
func CanonicalBytes(value interface{}) ([]byte, error) {
	var aMap = map[string]interface{}{}
	if err := toolbox.DefaultConverter.AssignConverted(&aMap, value); err != nil {
		return nil, fmt.Errorf("failed to convert value for canonical encoding: %w", err)
	}
	aMap = toolbox.DeleteEmptyKeys(aMap)
	normalized, err := normalize(aMap)
	if err != nil {
		return nil, err
	}
	return json.Marshal(normalized)
}

// normalize round-trips the value through JSON so that numeric and time
// representations settle into a single form regardless of the Go types the
// caller used.
func normalize(value interface{}) (interface{}, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CanonicalHash is a convenience helper returning the hex blake2b-256 digest
// of the canonical encoding of value.
func CanonicalHash(value interface{}) (string, error) {
	data, err := CanonicalBytes(value)
	if err != nil {
		return "", err
	}
	digest := blake2b.Sum256(data)
	return hex.EncodeToString(digest[:]), nil
}
