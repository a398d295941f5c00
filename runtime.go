package continuum

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/viant/continuum/internal/clock"
	"github.com/viant/continuum/kernel"
	"github.com/viant/continuum/model"
	"github.com/viant/continuum/service/inbox"
	"github.com/viant/continuum/service/replay"
	"github.com/viant/continuum/service/snapshot"
	"github.com/viant/continuum/worker"
)

var (
	// ErrWorldNotHosted indicates no loop for the world runs in this process.
	ErrWorldNotHosted = errors.New("world not hosted")

	// ErrWorldExists indicates the destination world already has history.
	ErrWorldExists = errors.New("world already exists")
)

// Runtime is the world-facing facade: it hosts writer loops, routes external
// events into world inboxes and performs the administrative operations
// (manifest changes, replay verification, forking).
type Runtime struct {
	service *Service

	mu    sync.Mutex
	loops map[string]*worker.Loop
}

func newRuntime(service *Service) *Runtime {
	return &Runtime{service: service, loops: map[string]*worker.Loop{}}
}

// Start launches the delivery pipelines and the claim-expiry reaper.
func (r *Runtime) Start(ctx context.Context) error {
	for _, dispatcher := range r.service.dispatchers {
		if err := dispatcher.Start(ctx); err != nil {
			return err
		}
	}
	go r.service.reaper.Start(ctx)
	return nil
}

// Shutdown stops every hosted world, then the pipelines and the reaper.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	loops := make([]*worker.Loop, 0, len(r.loops))
	for _, loop := range r.loops {
		loops = append(loops, loop)
	}
	r.loops = map[string]*worker.Loop{}
	r.mu.Unlock()
	for _, loop := range loops {
		loop.Shutdown()
	}
	for _, dispatcher := range r.service.dispatchers {
		dispatcher.Shutdown()
	}
	r.service.reaper.Shutdown()
	return nil
}

// StartWorld starts (or returns) the writer loop hosting the world in this
// process.  The loop acquires the world lease, restores state and begins
// draining the inbox.
func (r *Runtime) StartWorld(ctx context.Context, world model.WorldID) (*worker.Loop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if loop, ok := r.loops[world.Key()]; ok {
		return loop, nil
	}
	publishers := map[model.Pipeline]worker.Publisher{}
	for pipeline, dispatcher := range r.service.dispatchers {
		publishers[pipeline] = dispatcher
	}
	config := worker.Config{
		ID:               r.service.workerID,
		LeaseTTL:         r.service.config.Worker.LeaseTTL,
		CycleInterval:    r.service.config.Worker.CycleInterval,
		DrainBatch:       r.service.config.Worker.DrainBatch,
		SnapshotEvery:    r.service.config.Worker.SnapshotEvery,
		PromoteBaselines: r.service.config.Worker.PromoteBaselines,
		VerifyOnRestore:  r.service.config.Worker.VerifyOnRestore,
	}
	loop, err := worker.New(config, world, worker.Dependencies{
		Kernel:     r.service.kernel,
		Journal:    r.service.journal,
		Leases:     r.service.leases,
		Snapshots:  r.service.snapshots,
		Inboxes:    r.service.inboxes,
		Publishers: publishers,
		Metrics:    r.service.metrics,
	})
	if err != nil {
		return nil, err
	}
	if err := loop.Start(ctx); err != nil {
		return nil, err
	}
	r.loops[world.Key()] = loop
	return loop, nil
}

// StopWorld shuts the world's loop down and releases its lease.
func (r *Runtime) StopWorld(ctx context.Context, world model.WorldID) error {
	r.mu.Lock()
	loop, ok := r.loops[world.Key()]
	delete(r.loops, world.Key())
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("world %s: %w", world, ErrWorldNotHosted)
	}
	loop.Shutdown()
	return nil
}

// World returns the hosted loop for the world, or ErrWorldNotHosted.
func (r *Runtime) World(world model.WorldID) (*worker.Loop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	loop, ok := r.loops[world.Key()]
	if !ok {
		return nil, fmt.Errorf("world %s: %w", world, ErrWorldNotHosted)
	}
	return loop, nil
}

// CreateWorld starts the world's loop, waits until it runs and journals the
// initial manifest.
func (r *Runtime) CreateWorld(ctx context.Context, world model.WorldID, manifest *model.Manifest) (*worker.Loop, error) {
	loop, err := r.StartWorld(ctx, world)
	if err != nil {
		return nil, err
	}
	if err := r.waitRunning(ctx, loop); err != nil {
		return nil, err
	}
	if err := loop.ApplyManifest(ctx, manifest); err != nil {
		return nil, err
	}
	return loop, nil
}

func (r *Runtime) waitRunning(ctx context.Context, loop *worker.Loop) error {
	for {
		switch loop.Status() {
		case worker.StatusRunning:
			return nil
		case worker.StatusFenced, worker.StatusReleased:
			return fmt.Errorf("world loop stopped in status %s", loop.Status())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// SubmitEvent enqueues a normalized external event into the world's inbox.
// The world need not be hosted locally; its lease holder journals the event
// when it drains the inbox.
func (r *Runtime) SubmitEvent(ctx context.Context, world model.WorldID, ingress *model.Ingress) error {
	r.mu.Lock()
	loop, hosted := r.loops[world.Key()]
	r.mu.Unlock()
	if hosted {
		return loop.SubmitEvent(ctx, ingress)
	}
	if ingress == nil || ingress.MessageID == "" {
		return fmt.Errorf("ingress with message id is required")
	}
	return r.service.inboxes.Enqueue(ctx, world, inbox.NewIngressEntry(ingress, clock.Now()))
}

// ApplyManifest journals a manifest change on the hosted world, gated on
// quiescence.
func (r *Runtime) ApplyManifest(ctx context.Context, world model.WorldID, manifest *model.Manifest) error {
	loop, err := r.World(world)
	if err != nil {
		return err
	}
	return loop.ApplyManifest(ctx, manifest)
}

// WorldState returns the world's state at the journal head: the hosted
// loop's resident state, or a fresh restore for a world this process does
// not own.
func (r *Runtime) WorldState(ctx context.Context, world model.WorldID) (*kernel.State, error) {
	r.mu.Lock()
	loop, hosted := r.loops[world.Key()]
	r.mu.Unlock()
	if hosted {
		if state := loop.State(); state != nil {
			return state, nil
		}
	}
	return r.service.snapshots.Restore(ctx, world, r.service.kernel, r.service.journal)
}

// VerifyReplay checks the replay-or-die invariant for the world: folding the
// full journal from genesis must equal folding the baseline plus tail.
func (r *Runtime) VerifyReplay(ctx context.Context, world model.WorldID) error {
	return replay.Verify(ctx, world, r.service.kernel, r.service.journal, r.service.snapshots)
}

// ForkWorld creates dst as a copy of src at src's baseline.  The source must
// be quiescent at the baseline: a non-terminal instance or inflight intent
// would reference delivery state the fork deliberately leaves behind.  The
// destination gets the journal prefix up to the baseline height, its own
// re-addressed baseline snapshot, and fresh inbox, dedupe and lease state.
func (r *Runtime) ForkWorld(ctx context.Context, src, dst model.WorldID) error {
	if src == dst {
		return fmt.Errorf("cannot fork %s onto itself", src)
	}
	head, err := r.service.journal.Head(ctx, dst)
	if err != nil {
		return err
	}
	if head > 0 {
		return fmt.Errorf("world %s: %w", dst, ErrWorldExists)
	}
	ref, err := r.service.baselines.Get(ctx, src)
	if err != nil {
		if errors.Is(err, snapshot.ErrNoBaseline) {
			return fmt.Errorf("world %s: %w", src, snapshot.ErrNoBaseline)
		}
		return err
	}
	envelope, state, err := r.service.snapshots.Load(ctx, ref)
	if err != nil {
		return err
	}
	if err := r.service.kernel.CheckQuiescence(state); err != nil {
		return fmt.Errorf("cannot fork %s at height %d: %w", src, envelope.Height, err)
	}
	// The copy bypasses the lease guard: dst has no lease yet and gains its
	// first one only when a worker starts it.
	for height := uint64(1); height <= envelope.Height; height++ {
		record, err := r.service.journal.Get(ctx, src, height)
		if err != nil {
			return err
		}
		if _, err := r.service.journalStore.Append(ctx, dst, height-1, record); err != nil {
			return err
		}
	}
	state.World = dst
	_, dstRef, err := r.service.snapshots.Create(ctx, state)
	if err != nil {
		return err
	}
	return r.service.baselines.Put(ctx, dst, dstRef)
}
