package continuum

import (
	"fmt"

	"github.com/viant/afs"
	"github.com/viant/afs/url"
	"github.com/viant/continuum/internal/idgen"
	"github.com/viant/continuum/kernel"
	"github.com/viant/continuum/metrics"
	"github.com/viant/continuum/model"
	"github.com/viant/continuum/service/adapter"
	"github.com/viant/continuum/service/adapter/exec"
	"github.com/viant/continuum/service/adapter/httpcall"
	"github.com/viant/continuum/service/adapter/nop"
	"github.com/viant/continuum/service/adapter/printer"
	"github.com/viant/continuum/service/blob"
	"github.com/viant/continuum/service/dispatch"
	"github.com/viant/continuum/service/inbox"
	"github.com/viant/continuum/service/journal"
	"github.com/viant/continuum/service/lease"
	"github.com/viant/continuum/service/queue"
	"github.com/viant/continuum/service/snapshot"
	"github.com/viant/x"
)

// Service is the assembled runtime: kernel, stores, delivery pipelines and
// the world runtime facade.
type Service struct {
	config *Config
	fs     afs.Service

	modules         *kernel.Modules
	kernel          *kernel.Kernel
	registry        *adapter.Registry
	adapterTypes    []*x.Type
	adapterServices []adapter.Service

	journalStore journal.Store
	leaseStore   lease.Store
	blobs        blob.Store
	baselines    snapshot.BaselineStore
	inboxes      inbox.Service
	queues       map[model.Pipeline]queue.Pipeline[model.Intent]

	leases      *lease.Manager
	journal     *journal.Service
	snapshots   *snapshot.Service
	dispatchers map[model.Pipeline]*dispatch.Service
	reaper      *queue.Reaper
	metrics     *metrics.Metrics
	workerID    string

	runtime *Runtime
}

// New assembles a Service from options, defaulting every store to its
// in-memory backend (or the fs backend when the config carries a BaseURL).
func New(options ...Option) (*Service, error) {
	s := &Service{
		config:  DefaultConfig(),
		fs:      afs.New(),
		modules: kernel.NewModules(),
		queues:  map[model.Pipeline]queue.Pipeline[model.Intent]{},
	}
	for _, option := range options {
		option(s)
	}
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	if s.workerID == "" {
		s.workerID = idgen.New()
	}
	if err := s.ensureBaseSetup(); err != nil {
		return nil, err
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureBaseSetup fills every store left unset: in-memory by default, fs
// backends rooted at config.BaseURL when one is configured.
func (s *Service) ensureBaseSetup() error {
	baseURL := s.config.BaseURL
	if s.journalStore == nil {
		if baseURL == "" {
			s.journalStore = journal.NewMemoryStore()
		} else {
			store, err := journal.NewFsStore(s.fs, baseURL)
			if err != nil {
				return err
			}
			s.journalStore = store
		}
	}
	if s.leaseStore == nil {
		if baseURL == "" {
			s.leaseStore = lease.NewMemoryStore()
		} else {
			store, err := lease.NewFsStore(s.fs, baseURL)
			if err != nil {
				return err
			}
			s.leaseStore = store
		}
	}
	if s.blobs == nil {
		if baseURL == "" {
			s.blobs = blob.NewMemoryStore()
		} else {
			store, err := blob.NewFsStore(s.fs, url.Join(baseURL, "blob"))
			if err != nil {
				return err
			}
			s.blobs = store
		}
	}
	if s.baselines == nil {
		if baseURL == "" {
			s.baselines = snapshot.NewMemoryBaselines()
		} else {
			store, err := snapshot.NewFsBaselines(s.fs, baseURL)
			if err != nil {
				return err
			}
			s.baselines = store
		}
	}
	if s.inboxes == nil {
		if baseURL == "" {
			s.inboxes = inbox.NewMemory()
		} else {
			service, err := inbox.NewFs(s.fs, baseURL)
			if err != nil {
				return err
			}
			s.inboxes = service
		}
	}
	for _, pipeline := range []model.Pipeline{model.PipelineEffect, model.PipelineTimer, model.PipelineFabric} {
		if s.queues[pipeline] != nil {
			continue
		}
		if baseURL == "" {
			s.queues[pipeline] = queue.NewMemory[model.Intent]()
			continue
		}
		q, err := queue.NewFs[model.Intent](s.fs, url.Join(baseURL, "queue", string(pipeline)))
		if err != nil {
			return err
		}
		s.queues[pipeline] = q
	}
	return nil
}

// init wires the assembled stores into the kernel, the three delivery
// pipelines and the runtime facade.
func (s *Service) init() error {
	s.kernel = kernel.New(s.modules)
	s.leases = lease.NewManager(s.leaseStore)
	s.journal = journal.New(s.journalStore, s.leases)
	s.snapshots = snapshot.New(s.blobs, s.baselines)

	s.registry = adapter.NewRegistry(s.adapterTypes...)
	s.registry.Register(nop.New())
	s.registry.Register(printer.New())
	s.registry.Register(exec.New())
	s.registry.Register(httpcall.New())
	for _, service := range s.adapterServices {
		s.registry.Register(service)
	}
	invoker := adapter.NewInvoker(s.registry)

	handlers := map[model.Pipeline]dispatch.Handler{
		model.PipelineEffect: dispatch.NewEffectHandler(invoker),
		model.PipelineTimer:  dispatch.NewTimerHandler(),
		model.PipelineFabric: dispatch.NewFabricHandler(s.inboxes),
	}
	s.dispatchers = map[model.Pipeline]*dispatch.Service{}
	var requeuers []queue.Requeuer
	dispatchConfig := dispatch.Config{
		WorkerCount:  s.config.Dispatch.WorkerCount,
		ClaimTTL:     s.config.Dispatch.ClaimTTL,
		MaxAttempts:  s.config.Dispatch.MaxAttempts,
		PollInterval: s.config.Dispatch.PollInterval,
	}
	for pipeline, handler := range handlers {
		service, err := dispatch.New(dispatchConfig, s.queues[pipeline], handler, s.inboxes, s.metrics)
		if err != nil {
			return fmt.Errorf("failed to create %s dispatcher: %w", pipeline, err)
		}
		s.dispatchers[pipeline] = service
		requeuers = append(requeuers, s.queues[pipeline])
	}
	s.reaper = queue.NewReaper(queue.ReaperConfig{Interval: s.config.Reaper.Interval}, requeuers...)
	if s.metrics != nil {
		s.reaper.OnRequeued(func(count int) { s.metrics.RequeuedInc("all", count) })
	}
	s.runtime = newRuntime(s)
	return nil
}

// RegisterModule registers a workflow module after construction.
func (s *Service) RegisterModule(modules ...kernel.Module) {
	for _, module := range modules {
		s.modules.Register(module)
	}
}

// RegisterAdapterService registers an effect adapter after construction.
func (s *Service) RegisterAdapterService(services ...adapter.Service) {
	for _, service := range services {
		s.registry.Register(service)
	}
}

// RegisterAdapterType registers a go type after construction.
func (s *Service) RegisterAdapterType(types ...*x.Type) {
	for _, aType := range types {
		s.registry.Types().Register(aType)
	}
}

// Runtime returns the world runtime facade.
func (s *Service) Runtime() *Runtime {
	return s.runtime
}

// Journal returns the epoch-fenced journal service.
func (s *Service) Journal() *journal.Service {
	return s.journal
}

// Snapshots returns the snapshot service.
func (s *Service) Snapshots() *snapshot.Service {
	return s.snapshots
}

// Leases returns the lease manager.
func (s *Service) Leases() *lease.Manager {
	return s.leases
}

// Inboxes returns the per-world inbox service.
func (s *Service) Inboxes() inbox.Service {
	return s.inboxes
}
