// Package worker runs the single-writer loop for a leased world.  One loop
// owns one world: it acquires the lease, restores state from the baseline
// snapshot plus the journal tail, republishes unresolved intents, and then
// cycles – drain the inbox, journal and fold, publish emitted intents,
// snapshot when due, renew the lease.  A failed renewal fences the loop: it
// stops issuing mutating calls immediately and never resumes on the old
// epoch.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/viant/continuum/internal/clock"
	"github.com/viant/continuum/internal/idgen"
	"github.com/viant/continuum/kernel"
	"github.com/viant/continuum/metrics"
	"github.com/viant/continuum/model"
	"github.com/viant/continuum/progress"
	"github.com/viant/continuum/service/inbox"
	"github.com/viant/continuum/service/journal"
	"github.com/viant/continuum/service/lease"
	"github.com/viant/continuum/service/replay"
	"github.com/viant/continuum/service/snapshot"
	"github.com/viant/continuum/tracing"
)

// Status is the loop's lifecycle state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusAcquiring Status = "acquiring"
	StatusRestoring Status = "restoring"
	StatusRunning   Status = "running"
	StatusFenced    Status = "fenced"
	StatusReleased  Status = "released"
)

var (
	// ErrNotRunning indicates an operation that requires the running loop.
	ErrNotRunning = errors.New("worker: not running")
)

// Publisher hands a journaled intent to a delivery pipeline.
type Publisher interface {
	Publish(ctx context.Context, intent *model.Intent) error
}

// Config represents worker loop configuration
type Config struct {
	// ID identifies this worker in lease records; defaults to a fresh uuid
	ID string

	// LeaseTTL is the lease duration requested on acquire and renew
	LeaseTTL time.Duration

	// CycleInterval is the idle wait between cycles with no inbox progress
	CycleInterval time.Duration

	// DrainBatch bounds how many inbox entries one cycle folds
	DrainBatch int

	// SnapshotEvery triggers a snapshot each time the journal grows this many
	// records past the last one; 0 disables snapshotting
	SnapshotEvery uint64

	// PromoteBaselines promotes each snapshot to the replay baseline once the
	// receipt horizon allows
	PromoteBaselines bool

	// VerifyOnRestore replays the journal from genesis on restore and refuses
	// to run the world on a mismatch
	VerifyOnRestore bool
}

// DefaultConfig returns the default worker configuration
func DefaultConfig() Config {
	return Config{
		LeaseTTL:      10 * time.Second,
		CycleInterval: 20 * time.Millisecond,
		DrainBatch:    64,
	}
}

// Dependencies bundles the services a loop operates over.
type Dependencies struct {
	Kernel     *kernel.Kernel
	Journal    *journal.Service
	Leases     *lease.Manager
	Snapshots  *snapshot.Service
	Inboxes    inbox.Service
	Publishers map[model.Pipeline]Publisher
	Metrics    *metrics.Metrics
}

// Loop is the single-writer event loop for one world.
type Loop struct {
	config     Config
	world      model.WorldID
	kernel     *kernel.Kernel
	journal    *journal.Service
	leases     *lease.Manager
	snapshots  *snapshot.Service
	inboxes    inbox.Service
	publishers map[model.Pipeline]Publisher
	metrics    *metrics.Metrics

	mu      sync.Mutex
	status  Status
	epoch   uint64
	state   *kernel.State
	tracker *progress.Progress

	shutdownCh   chan struct{}
	doneCh       chan struct{}
	shutdownOnce sync.Once
}

// New creates a loop for the world.
func New(config Config, world model.WorldID, deps Dependencies) (*Loop, error) {
	if world.IsZero() {
		return nil, fmt.Errorf("world is required")
	}
	if deps.Kernel == nil {
		return nil, fmt.Errorf("kernel is required")
	}
	if deps.Journal == nil {
		return nil, fmt.Errorf("journal is required")
	}
	if deps.Leases == nil {
		return nil, fmt.Errorf("lease manager is required")
	}
	if deps.Snapshots == nil {
		return nil, fmt.Errorf("snapshot service is required")
	}
	if deps.Inboxes == nil {
		return nil, fmt.Errorf("inbox service is required")
	}
	if config.ID == "" {
		config.ID = idgen.New()
	}
	if config.LeaseTTL <= 0 {
		config.LeaseTTL = DefaultConfig().LeaseTTL
	}
	if config.CycleInterval <= 0 {
		config.CycleInterval = DefaultConfig().CycleInterval
	}
	if config.DrainBatch <= 0 {
		config.DrainBatch = DefaultConfig().DrainBatch
	}
	return &Loop{
		config:     config,
		world:      world,
		kernel:     deps.Kernel,
		journal:    deps.Journal,
		leases:     deps.Leases,
		snapshots:  deps.Snapshots,
		inboxes:    deps.Inboxes,
		publishers: deps.Publishers,
		metrics:    deps.Metrics,
		status:     StatusIdle,
		tracker:    &progress.Progress{World: world.Key(), StartedAt: clock.Now()},
		shutdownCh: make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Progress returns a copy of the loop's aggregated counters.
func (l *Loop) Progress() progress.Progress {
	return l.tracker.Snapshot()
}

// Status returns the loop's lifecycle state.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Epoch returns the lease epoch the loop is writing under; 0 before acquire.
func (l *Loop) Epoch() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.epoch
}

// State returns a copy of the world state at the last folded height, or nil
// before restore completes.
func (l *Loop) State() *kernel.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == nil {
		return nil
	}
	return l.state.Clone()
}

func (l *Loop) setStatus(status Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status = status
}

// Start launches the loop goroutine.
func (l *Loop) Start(ctx context.Context) error {
	go l.run(ctx)
	return nil
}

// Shutdown stops the loop and waits for it to release the lease.
func (l *Loop) Shutdown() {
	l.shutdownOnce.Do(func() { close(l.shutdownCh) })
	<-l.doneCh
}

// SubmitEvent enqueues a normalized external event into the world's inbox.
// A duplicate message id fails with inbox.ErrDuplicate.
func (l *Loop) SubmitEvent(ctx context.Context, ingress *model.Ingress) error {
	if ingress == nil || ingress.MessageID == "" {
		return fmt.Errorf("ingress with message id is required")
	}
	return l.inboxes.Enqueue(ctx, l.world, inbox.NewIngressEntry(ingress, clock.Now()))
}

// ApplyManifest journals a manifest change.  The world must be quiescent: no
// intent inflight and every instance terminal, otherwise the returned
// *kernel.QuiescenceError names every blocker.
func (l *Loop) ApplyManifest(ctx context.Context, manifest *model.Manifest) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status != StatusRunning {
		return fmt.Errorf("world %s: %w", l.world, ErrNotRunning)
	}
	if err := manifest.Init(); err != nil {
		return err
	}
	hash, err := manifest.Hash()
	if err != nil {
		return err
	}
	if err := l.kernel.CheckQuiescence(l.state); err != nil {
		return err
	}
	record := &model.Record{
		Kind:     model.KindManifestChange,
		At:       clock.Now(),
		Manifest: &model.ManifestChange{ManifestHash: hash, Manifest: manifest},
	}
	return l.journalAndFold(ctx, record)
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.doneCh)
	if !l.acquire(ctx) {
		return
	}
	if err := l.restore(ctx); err != nil {
		log.Printf("worker %s world %s: failed to restore: %v", l.config.ID, l.world, err)
		l.release(ctx)
		return
	}
	l.setStatus(StatusRunning)
	for {
		select {
		case <-ctx.Done():
			l.release(ctx)
			return
		case <-l.shutdownCh:
			l.release(ctx)
			return
		default:
		}
		progressed, err := l.cycle(ctx)
		if err != nil {
			if errors.Is(err, lease.ErrFenced) {
				l.setStatus(StatusFenced)
				log.Printf("worker %s world %s: fenced: %v", l.config.ID, l.world, err)
				return
			}
			log.Printf("worker %s world %s: cycle failed: %v", l.config.ID, l.world, err)
		}
		if _, err := l.leases.Renew(ctx, l.world, l.config.ID, l.Epoch(), l.config.LeaseTTL); err != nil {
			// Any renewal failure fences the loop; writing on a lease whose
			// state is unknown risks a second writer.
			l.setStatus(StatusFenced)
			log.Printf("worker %s world %s: failed to renew lease: %v", l.config.ID, l.world, err)
			return
		}
		if !progressed {
			select {
			case <-ctx.Done():
			case <-l.shutdownCh:
			case <-time.After(l.config.CycleInterval):
			}
		}
	}
}

// acquire takes the world lease, waiting out a holder whose lease has not yet
// expired.  It reports false when shutdown preempts acquisition.
func (l *Loop) acquire(ctx context.Context) bool {
	l.setStatus(StatusAcquiring)
	for {
		record, err := l.leases.Acquire(ctx, l.world, l.config.ID, l.config.LeaseTTL)
		if err == nil {
			l.mu.Lock()
			l.epoch = record.Epoch
			l.mu.Unlock()
			return true
		}
		if !errors.Is(err, lease.ErrHeld) {
			log.Printf("worker %s world %s: failed to acquire lease: %v", l.config.ID, l.world, err)
		}
		select {
		case <-ctx.Done():
			l.setStatus(StatusIdle)
			return false
		case <-l.shutdownCh:
			l.setStatus(StatusIdle)
			return false
		case <-time.After(l.config.CycleInterval):
		}
	}
}

// restore rebuilds state from the baseline plus the journal tail and
// republishes every unresolved intent: after a crash the pipelines may never
// have seen them, and the dedupe tables make re-sending the ones they did
// see harmless.
func (l *Loop) restore(ctx context.Context) (err error) {
	l.setStatus(StatusRestoring)
	ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("worker.restore %s", l.world.Key()), "INTERNAL")
	defer tracing.EndSpan(span, err)

	if l.config.VerifyOnRestore {
		if err = replay.Verify(ctx, l.world, l.kernel, l.journal, l.snapshots); err != nil {
			return err
		}
	}
	state, err := l.snapshots.Restore(ctx, l.world, l.kernel, l.journal)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.state = state
	l.mu.Unlock()
	for _, hash := range state.InflightHashes() {
		l.publish(ctx, state.Inflight[hash])
	}
	span.WithAttributes(map[string]string{
		"world":    l.world.Key(),
		"height":   fmt.Sprintf("%d", state.Height),
		"inflight": fmt.Sprintf("%d", len(state.Inflight)),
	})
	return nil
}

// cycle drains one inbox batch, journaling and folding each entry, then
// snapshots when due.  It reports whether any entry was processed.
func (l *Loop) cycle(ctx context.Context) (progressed bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries, err := l.inboxes.Drain(ctx, l.world, l.config.DrainBatch)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		handled, err := l.fold(ctx, entry)
		if err != nil {
			return progressed, err
		}
		if handled {
			if err := l.inboxes.Ack(ctx, l.world, entry.ID); err != nil {
				return progressed, err
			}
			l.tracker.Update(progress.Delta{Acked: 1})
			progressed = true
		}
	}
	if err := l.snapshotIfDue(ctx); err != nil {
		return progressed, err
	}
	return progressed, nil
}

// fold journals one inbox entry unless state already accounts for it.  Both
// paths end with the entry acknowledged: redelivery of an already-folded
// message must not journal it twice.
func (l *Loop) fold(ctx context.Context, entry *inbox.Entry) (bool, error) {
	switch entry.Kind {
	case inbox.EntryIngress:
		if _, seen := l.state.Seen[entry.Ingress.MessageID]; seen {
			return true, nil
		}
		return true, l.journalAndFold(ctx, model.NewIngressRecord(clock.Now(), entry.Ingress))
	case inbox.EntryReceipt:
		if _, inflight := l.state.Inflight[entry.Receipt.IntentHash]; !inflight {
			// Resolved already, or a receipt for an intent this journal never
			// recorded; either way there is nothing to fold.
			return true, nil
		}
		return true, l.journalAndFold(ctx, model.NewReceiptRecord(clock.Now(), entry.Receipt))
	default:
		log.Printf("worker %s world %s: ignoring inbox entry %s of kind %q", l.config.ID, l.world, entry.ID, entry.Kind)
		return true, nil
	}
}

// journalAndFold appends the record under the current epoch, folds it, then
// journals, folds and publishes every intent the fold emitted.  The intent
// record is committed before the pipeline sees the intent: a crash after
// publish re-sends on restore, a crash before publish re-sends too, and the
// dedupe table collapses both to one delivery.
func (l *Loop) journalAndFold(ctx context.Context, record *model.Record) error {
	height, err := l.journal.Append(ctx, l.world, l.epoch, l.state.Height, record)
	if err != nil {
		return err
	}
	record.Height = height
	result, err := l.kernel.Apply(l.state, record)
	if err != nil {
		return err
	}
	l.state = result.State
	l.metrics.FoldInc(1)
	l.tracker.Update(progress.Delta{Folded: 1, Dropped: len(result.Dropped)})
	for _, dropped := range result.Dropped {
		log.Printf("worker %s world %s: %v", l.config.ID, l.world, dropped)
	}
	for _, intent := range result.Intents {
		intentRecord := model.NewIntentRecord(clock.Now(), intent)
		intentHeight, err := l.journal.Append(ctx, l.world, l.epoch, l.state.Height, intentRecord)
		if err != nil {
			return err
		}
		intentRecord.Height = intentHeight
		folded, err := l.kernel.Apply(l.state, intentRecord)
		if err != nil {
			return err
		}
		l.state = folded.State
		l.metrics.FoldInc(1)
		l.tracker.Update(progress.Delta{Folded: 1, Published: 1})
		l.publish(ctx, intent)
	}
	l.tracker.SetHeight(l.state.Height)
	return nil
}

// publish hands an intent to its pipeline.  Failures are logged, not fatal:
// the intent is journaled and inflight, and restore republishes it.
func (l *Loop) publish(ctx context.Context, intent *model.Intent) {
	publisher, ok := l.publishers[intent.Pipeline]
	if !ok {
		log.Printf("worker %s world %s: no publisher for pipeline %s, intent %s stays inflight", l.config.ID, l.world, intent.Pipeline, intent.Hash)
		return
	}
	if err := publisher.Publish(ctx, intent); err != nil {
		log.Printf("worker %s world %s: failed to publish intent %s: %v", l.config.ID, l.world, intent.Hash, err)
	}
}

// snapshotIfDue snapshots once the journal has grown SnapshotEvery records
// past the last marker, journals the marker and optionally promotes the
// snapshot to the replay baseline.
func (l *Loop) snapshotIfDue(ctx context.Context) error {
	if l.config.SnapshotEvery == 0 || l.state.Height == 0 {
		return nil
	}
	if l.state.Height-l.state.LastSnapshotHeight < l.config.SnapshotEvery {
		return nil
	}
	envelope, ref, err := l.snapshots.Create(ctx, l.state)
	if err != nil {
		return err
	}
	marker := &model.Record{
		Kind:     model.KindSnapshotMarker,
		At:       clock.Now(),
		Snapshot: &model.SnapshotMarker{Ref: string(ref), Height: envelope.Height},
	}
	if err := l.journalAndFold(ctx, marker); err != nil {
		return err
	}
	l.tracker.Update(progress.Delta{Snapshots: 1})
	if !l.config.PromoteBaselines {
		return nil
	}
	if err := l.snapshots.PromoteBaseline(ctx, l.world, ref, l.journal); err != nil {
		if errors.Is(err, snapshot.ErrReceiptHorizon) {
			// An intent below the snapshot height is still unresolved; a later
			// snapshot will clear the horizon.
			return nil
		}
		return err
	}
	return nil
}

// release gives the lease up cleanly on shutdown.  It runs on a fresh
// context: the loop context is often already canceled by the time the lease
// is handed back.
func (l *Loop) release(context.Context) {
	ctx := context.Background()
	if epoch := l.Epoch(); epoch > 0 {
		if err := l.leases.Release(ctx, l.world, l.config.ID, epoch); err != nil {
			log.Printf("worker %s world %s: failed to release lease: %v", l.config.ID, l.world, err)
		}
	}
	l.setStatus(StatusReleased)
}
