package replay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/continuum/kernel"
	"github.com/viant/continuum/model"
	"github.com/viant/continuum/service/blob"
	"github.com/viant/continuum/service/journal"
	"github.com/viant/continuum/service/snapshot"
)

type tallyState struct {
	Total int `json:"total,omitempty"`
}

func newTestKernel() *kernel.Kernel {
	modules := kernel.NewModules()
	modules.Register(kernel.Typed("tally", func(state *tallyState, event *kernel.Event) (*kernel.StepOutput, error) {
		if event.Type == "tally.add" {
			state.Total++
		}
		return &kernel.StepOutput{}, nil
	}))
	return kernel.New(modules)
}

func appendAndFold(t *testing.T, log *journal.Service, aKernel *kernel.Kernel, state *kernel.State, record *model.Record) *kernel.State {
	ctx := context.Background()
	height, err := log.Append(ctx, state.World, 0, state.Height, record)
	if err != nil {
		t.Fatalf("failed to append: %v", err)
	}
	record.Height = height
	result, err := aKernel.Apply(state, record)
	if err != nil {
		t.Fatalf("failed to fold: %v", err)
	}
	return result.State
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	world := model.NewWorldID("test", "replay")
	aKernel := newTestKernel()
	log := journal.New(journal.NewMemoryStore(), nil)
	snapshots := snapshot.New(blob.NewMemoryStore(), snapshot.NewMemoryBaselines())

	manifest := &model.Manifest{
		Name:    "tallies",
		Version: "1",
		Modules: []string{"tally"},
		Routes:  []*model.Route{{EventType: "tally.add", Module: "tally", KeyPath: "tally.id"}},
	}
	assert.NoError(t, manifest.Init())
	hash, err := manifest.Hash()
	assert.NoError(t, err)

	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	state := kernel.Genesis(world)
	state = appendAndFold(t, log, aKernel, state, &model.Record{
		Kind: model.KindManifestChange, At: at,
		Manifest: &model.ManifestChange{ManifestHash: hash, Manifest: manifest},
	})
	for _, id := range []string{"m-1", "m-2"} {
		state = appendAndFold(t, log, aKernel, state, &model.Record{
			Kind: model.KindIngress, At: at,
			Ingress: &model.Ingress{
				EventType: "tally.add",
				MessageID: id,
				Payload:   map[string]interface{}{"tally": map[string]interface{}{"id": "t-1"}},
			},
		})
	}

	// No baseline yet: both folds start from genesis.
	assert.NoError(t, Verify(ctx, world, aKernel, log, snapshots))

	// Snapshot, promote, extend the journal: baseline+tail must still match.
	_, ref, err := snapshots.Create(ctx, state)
	assert.NoError(t, err)
	assert.NoError(t, snapshots.PromoteBaseline(ctx, world, ref, log))

	state = appendAndFold(t, log, aKernel, state, &model.Record{
		Kind: model.KindIngress, At: at.Add(time.Second),
		Ingress: &model.Ingress{
			EventType: "tally.add",
			MessageID: "m-3",
			Payload:   map[string]interface{}{"tally": map[string]interface{}{"id": "t-1"}},
		},
	})
	assert.NoError(t, Verify(ctx, world, aKernel, log, snapshots))
}

func TestVerify_MismatchCarriesDiff(t *testing.T) {
	ctx := context.Background()
	world := model.NewWorldID("test", "mismatch")
	aKernel := newTestKernel()
	log := journal.New(journal.NewMemoryStore(), nil)
	blobs := blob.NewMemoryStore()
	baselines := snapshot.NewMemoryBaselines()
	snapshots := snapshot.New(blobs, baselines)

	manifest := &model.Manifest{
		Name:    "tallies",
		Version: "1",
		Modules: []string{"tally"},
		Routes:  []*model.Route{{EventType: "tally.add", Module: "tally", KeyPath: "tally.id"}},
	}
	assert.NoError(t, manifest.Init())
	hash, err := manifest.Hash()
	assert.NoError(t, err)

	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	state := kernel.Genesis(world)
	state = appendAndFold(t, log, aKernel, state, &model.Record{
		Kind: model.KindManifestChange, At: at,
		Manifest: &model.ManifestChange{ManifestHash: hash, Manifest: manifest},
	})

	// Promote a baseline forged from a diverged state: verification must
	// fail with a diff, not repair.
	forged := state.Clone()
	forged.Instances["ghost"] = &model.Instance{Key: "ghost", Module: "tally", Status: model.InstanceActive}
	_, ref, err := snapshots.Create(ctx, forged)
	assert.NoError(t, err)
	assert.NoError(t, baselines.Put(ctx, world, ref))

	err = Verify(ctx, world, aKernel, log, snapshots)
	assert.ErrorIs(t, err, ErrReplayMismatch)
	var mismatch *MismatchError
	if assert.ErrorAs(t, err, &mismatch) {
		assert.Contains(t, mismatch.Diff, "ghost")
	}
}
