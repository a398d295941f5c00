package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/continuum/kernel"
	"github.com/viant/continuum/model"
	"github.com/viant/continuum/service/blob"
	"github.com/viant/continuum/service/journal"
)

type counterState struct {
	Count int `json:"count,omitempty"`
}

func newTestKernel() *kernel.Kernel {
	modules := kernel.NewModules()
	modules.Register(kernel.Typed("counter", func(state *counterState, event *kernel.Event) (*kernel.StepOutput, error) {
		switch event.Type {
		case "counter.incr":
			state.Count++
			return &kernel.StepOutput{
				Effects: []*model.EffectSpec{
					{
						Pipeline:       model.PipelineEffect,
						Service:        "printer",
						Method:         "print",
						Params:         map[string]interface{}{"message": "incremented"},
						CorrelationKey: "incr",
					},
				},
			}, nil
		case "receipt":
			return &kernel.StepOutput{}, nil
		}
		return &kernel.StepOutput{}, nil
	}))
	return kernel.New(modules)
}

func testManifest(t *testing.T) *model.Manifest {
	manifest := &model.Manifest{
		Name:    "counters",
		Version: "1",
		Modules: []string{"counter"},
		Routes: []*model.Route{
			{EventType: "counter.incr", Module: "counter", KeyPath: "counter.id"},
		},
	}
	if err := manifest.Init(); err != nil {
		t.Fatalf("failed to init manifest: %v", err)
	}
	return manifest
}

// buildWorld journals a manifest change, one ingress and its emitted intent,
// returning the folded state and the outstanding intent.
func buildWorld(t *testing.T, world model.WorldID, aKernel *kernel.Kernel, log *journal.Service) (*kernel.State, *model.Intent) {
	ctx := context.Background()
	manifest := testManifest(t)
	hash, err := manifest.Hash()
	if err != nil {
		t.Fatalf("failed to hash manifest: %v", err)
	}
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	state := kernel.Genesis(world)
	records := []*model.Record{
		{Kind: model.KindManifestChange, At: at, Manifest: &model.ManifestChange{ManifestHash: hash, Manifest: manifest}},
		{Kind: model.KindIngress, At: at, Ingress: &model.Ingress{
			EventType: "counter.incr",
			MessageID: "m-1",
			Payload:   map[string]interface{}{"counter": map[string]interface{}{"id": "c-1"}},
		}},
	}
	var intent *model.Intent
	for _, record := range records {
		height, err := log.Append(ctx, world, 0, state.Height, record)
		if err != nil {
			t.Fatalf("failed to append: %v", err)
		}
		record.Height = height
		result, err := aKernel.Apply(state, record)
		if err != nil {
			t.Fatalf("failed to fold: %v", err)
		}
		state = result.State
		if len(result.Intents) > 0 {
			intent = result.Intents[0]
		}
	}
	intentRecord := &model.Record{Kind: model.KindIntent, At: at, Intent: intent}
	height, err := log.Append(ctx, world, 0, state.Height, intentRecord)
	if err != nil {
		t.Fatalf("failed to append intent: %v", err)
	}
	intentRecord.Height = height
	result, err := aKernel.Apply(state, intentRecord)
	if err != nil {
		t.Fatalf("failed to fold intent: %v", err)
	}
	return result.State, intent
}

func TestService_CreateLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	world := model.NewWorldID("test", "snap")
	aKernel := newTestKernel()
	log := journal.New(journal.NewMemoryStore(), nil)
	state, _ := buildWorld(t, world, aKernel, log)

	service := New(blob.NewMemoryStore(), NewMemoryBaselines())
	envelope, ref, err := service.Create(ctx, state)
	assert.NoError(t, err)
	assert.Equal(t, state.Height, envelope.Height)
	assert.Len(t, envelope.Roots, 3)

	loadedEnvelope, loaded, err := service.Load(ctx, ref)
	assert.NoError(t, err)
	assert.Equal(t, envelope.Height, loadedEnvelope.Height)

	want, err := state.CanonicalBytes()
	assert.NoError(t, err)
	got, err := loaded.CanonicalBytes()
	assert.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}

func TestService_LoadFailsClosedOnMissingRoot(t *testing.T) {
	ctx := context.Background()
	world := model.NewWorldID("test", "closed")
	aKernel := newTestKernel()
	log := journal.New(journal.NewMemoryStore(), nil)
	state, _ := buildWorld(t, world, aKernel, log)

	blobs := blob.NewMemoryStore()
	service := New(blobs, NewMemoryBaselines())
	envelope, ref, err := service.Create(ctx, state)
	assert.NoError(t, err)

	blobs.Delete(ctx, envelope.Roots[1].Ref)

	_, _, err = service.Load(ctx, ref)
	assert.ErrorIs(t, err, ErrRootIncomplete)
}

func TestService_PromoteBaselineReceiptHorizon(t *testing.T) {
	ctx := context.Background()
	world := model.NewWorldID("test", "horizon")
	aKernel := newTestKernel()
	log := journal.New(journal.NewMemoryStore(), nil)
	state, intent := buildWorld(t, world, aKernel, log)

	service := New(blob.NewMemoryStore(), NewMemoryBaselines())
	_, ref, err := service.Create(ctx, state)
	assert.NoError(t, err)

	// The intent below the snapshot height has no receipt yet.
	err = service.PromoteBaseline(ctx, world, ref, log)
	assert.ErrorIs(t, err, ErrReceiptHorizon)

	// Journal the receipt; promotion of a fresh snapshot now succeeds.
	receiptRecord := &model.Record{
		Kind: model.KindReceipt,
		At:   time.Date(2025, 3, 1, 10, 0, 4, 0, time.UTC),
		Receipt: &model.Receipt{
			IntentHash:     intent.Hash,
			Status:         model.ReceiptOK,
			CorrelationKey: intent.CorrelationKey,
		},
	}
	height, err := log.Append(ctx, world, 0, state.Height, receiptRecord)
	assert.NoError(t, err)
	receiptRecord.Height = height
	result, err := aKernel.Apply(state, receiptRecord)
	assert.NoError(t, err)
	state = result.State

	_, ref, err = service.Create(ctx, state)
	assert.NoError(t, err)
	assert.NoError(t, service.PromoteBaseline(ctx, world, ref, log))

	// Restore folds the baseline plus any tail back to the head state.
	restored, err := service.Restore(ctx, world, aKernel, log)
	assert.NoError(t, err)
	want, err := state.CanonicalBytes()
	assert.NoError(t, err)
	got, err := restored.CanonicalBytes()
	assert.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}
