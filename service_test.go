package continuum_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/continuum"
	"github.com/viant/continuum/kernel"
	"github.com/viant/continuum/model"
)

type orderState struct {
	Status string `json:"status,omitempty"`
}

func orderModule() kernel.Module {
	return kernel.Typed("order", func(state *orderState, event *kernel.Event) (*kernel.StepOutput, error) {
		switch {
		case event.Type == "order.created":
			state.Status = "charging"
			return &kernel.StepOutput{Effects: []*model.EffectSpec{{
				Pipeline:       model.PipelineEffect,
				Service:        "nop",
				Method:         "nop",
				CorrelationKey: "charge",
			}}}, nil
		case event.Receipt != nil:
			state.Status = "paid"
			return &kernel.StepOutput{Done: true}, nil
		}
		return &kernel.StepOutput{}, nil
	})
}

func testConfig() *continuum.Config {
	config := continuum.DefaultConfig()
	config.Worker.LeaseTTL = time.Second
	config.Worker.CycleInterval = time.Millisecond
	config.Worker.SnapshotEvery = 2
	config.Dispatch.WorkerCount = 1
	config.Dispatch.PollInterval = time.Millisecond
	config.Reaper.Interval = 10 * time.Millisecond
	return config
}

func orderManifest(t *testing.T) *model.Manifest {
	manifest := &model.Manifest{
		Name:    "orders",
		Version: "1",
		Modules: []string{"order"},
		Routes:  []*model.Route{{EventType: "order.created", Module: "order", KeyPath: "order.id"}},
	}
	if err := manifest.Init(); err != nil {
		t.Fatalf("failed to init manifest: %v", err)
	}
	return manifest
}

// settled reports that no snapshot is pending, so the journal head is stable
// and a replay verification will not race a marker append.
func settled(state *kernel.State) bool {
	return len(state.Inflight) == 0 && state.Height-state.LastSnapshotHeight < 2
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func TestService_EndToEnd(t *testing.T) {
	ctx := context.Background()
	srv, err := continuum.New(
		continuum.WithConfig(testConfig()),
		continuum.WithModules(orderModule()),
		continuum.WithWorkerID("w-1"),
	)
	assert.NoError(t, err)
	rt := srv.Runtime()
	assert.NoError(t, rt.Start(ctx))
	defer rt.Shutdown(ctx)

	world := model.NewWorldID("prod", "orders")
	_, err = rt.CreateWorld(ctx, world, orderManifest(t))
	assert.NoError(t, err)

	assert.NoError(t, rt.SubmitEvent(ctx, world, &model.Ingress{
		EventType: "order.created",
		MessageID: "m-1",
		Payload:   map[string]interface{}{"order": map[string]interface{}{"id": "o-1"}},
	}))
	waitFor(t, 3*time.Second, func() bool {
		state, err := rt.WorldState(ctx, world)
		if err != nil {
			return false
		}
		instance := state.Instances["o-1"]
		return instance != nil && instance.Status == model.InstanceTerminal && settled(state)
	})
	assert.NoError(t, rt.VerifyReplay(ctx, world))

	// Fork once a quiescent baseline is promoted.
	fork := model.NewWorldID("prod", "orders-fork")
	waitFor(t, 3*time.Second, func() bool { return rt.ForkWorld(ctx, world, fork) == nil })
	_, err = rt.StartWorld(ctx, fork)
	assert.NoError(t, err)

	// The fork carries the source history but runs independently.
	waitFor(t, 3*time.Second, func() bool {
		state, err := rt.WorldState(ctx, fork)
		return err == nil && state.Instances["o-1"] != nil
	})
	assert.NoError(t, rt.SubmitEvent(ctx, fork, &model.Ingress{
		EventType: "order.created",
		MessageID: "m-2",
		Payload:   map[string]interface{}{"order": map[string]interface{}{"id": "o-2"}},
	}))
	waitFor(t, 3*time.Second, func() bool {
		state, err := rt.WorldState(ctx, fork)
		if err != nil {
			return false
		}
		instance := state.Instances["o-2"]
		return instance != nil && instance.Status == model.InstanceTerminal && settled(state)
	})
	assert.NoError(t, rt.VerifyReplay(ctx, fork))

	// The source world never saw the fork's order.
	state, err := rt.WorldState(ctx, world)
	assert.NoError(t, err)
	assert.Nil(t, state.Instances["o-2"])
}

func TestService_FabricAcrossWorlds(t *testing.T) {
	ctx := context.Background()
	worldA := model.NewWorldID("prod", "pings")
	worldB := model.NewWorldID("prod", "pongs")

	pinger := kernel.Typed("pinger", func(state *orderState, event *kernel.Event) (*kernel.StepOutput, error) {
		if event.Type == "ping.start" {
			state.Status = "sent"
			return &kernel.StepOutput{Effects: []*model.EffectSpec{{
				Pipeline:    model.PipelineFabric,
				Destination: &worldB,
				EventType:   "pong.request",
				Params:      map[string]interface{}{"pong": map[string]interface{}{"id": "p-1"}},
			}}}, nil
		}
		return &kernel.StepOutput{}, nil
	})
	ponger := kernel.Typed("ponger", func(state *orderState, event *kernel.Event) (*kernel.StepOutput, error) {
		if event.Type == "pong.request" {
			state.Status = "ponged"
			return &kernel.StepOutput{Done: true}, nil
		}
		return &kernel.StepOutput{}, nil
	})

	config := testConfig()
	config.Worker.SnapshotEvery = 0
	srv, err := continuum.New(
		continuum.WithConfig(config),
		continuum.WithModules(pinger, ponger),
	)
	assert.NoError(t, err)
	rt := srv.Runtime()
	assert.NoError(t, rt.Start(ctx))
	defer rt.Shutdown(ctx)

	manifest := &model.Manifest{
		Name:    "pingpong",
		Version: "1",
		Modules: []string{"pinger", "ponger"},
		Routes: []*model.Route{
			{EventType: "ping.start", Module: "pinger", KeyPath: "ping.id"},
			{EventType: "pong.request", Module: "ponger", KeyPath: "pong.id"},
		},
	}
	assert.NoError(t, manifest.Init())
	for _, world := range []model.WorldID{worldA, worldB} {
		_, err = rt.CreateWorld(ctx, world, manifest)
		assert.NoError(t, err)
	}

	assert.NoError(t, rt.SubmitEvent(ctx, worldA, &model.Ingress{
		EventType: "ping.start",
		MessageID: "m-1",
		Payload:   map[string]interface{}{"ping": map[string]interface{}{"id": "i-1"}},
	}))

	// The fabric message lands in world B exactly once and the delivery
	// receipt settles world A's intent.
	waitFor(t, 3*time.Second, func() bool {
		state, err := rt.WorldState(ctx, worldB)
		if err != nil {
			return false
		}
		instance := state.Instances["p-1"]
		return instance != nil && instance.Status == model.InstanceTerminal
	})
	waitFor(t, 3*time.Second, func() bool {
		state, err := rt.WorldState(ctx, worldA)
		return err == nil && len(state.Inflight) == 0 && len(state.Receipted) == 1
	})
	for _, world := range []model.WorldID{worldA, worldB} {
		assert.NoError(t, rt.VerifyReplay(ctx, world))
	}
}
