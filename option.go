package continuum

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/viant/continuum/kernel"
	"github.com/viant/continuum/metrics"
	"github.com/viant/continuum/model"
	"github.com/viant/continuum/service/adapter"
	"github.com/viant/continuum/service/blob"
	"github.com/viant/continuum/service/inbox"
	"github.com/viant/continuum/service/journal"
	"github.com/viant/continuum/service/lease"
	"github.com/viant/continuum/service/queue"
	"github.com/viant/continuum/service/snapshot"
	"github.com/viant/continuum/tracing"
	"github.com/viant/x"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customizes the Service
type Option func(s *Service)

// WithConfig sets the runtime configuration
func WithConfig(config *Config) Option {
	return func(s *Service) { s.config = config }
}

// WithModules registers workflow modules with the kernel
func WithModules(modules ...kernel.Module) Option {
	return func(s *Service) {
		for _, module := range modules {
			s.modules.Register(module)
		}
	}
}

// WithAdapterTypes registers go types resolvable by adapter signatures
func WithAdapterTypes(types ...*x.Type) Option {
	return func(s *Service) { s.adapterTypes = append(s.adapterTypes, types...) }
}

// WithAdapterServices registers effect adapter services beyond the built-ins
func WithAdapterServices(services ...adapter.Service) Option {
	return func(s *Service) { s.adapterServices = append(s.adapterServices, services...) }
}

// WithJournalStore sets the journal store
func WithJournalStore(store journal.Store) Option {
	return func(s *Service) { s.journalStore = store }
}

// WithLeaseStore sets the lease store
func WithLeaseStore(store lease.Store) Option {
	return func(s *Service) { s.leaseStore = store }
}

// WithBlobStore sets the content-addressed blob store
func WithBlobStore(store blob.Store) Option {
	return func(s *Service) { s.blobs = store }
}

// WithBaselineStore sets the baseline pointer store
func WithBaselineStore(store snapshot.BaselineStore) Option {
	return func(s *Service) { s.baselines = store }
}

// WithInboxes sets the per-world inbox service
func WithInboxes(service inbox.Service) Option {
	return func(s *Service) { s.inboxes = service }
}

// WithQueue sets one pipeline's durable queue
func WithQueue(pipeline model.Pipeline, q queue.Pipeline[model.Intent]) Option {
	return func(s *Service) { s.queues[pipeline] = q }
}

// WithWorkerID sets the worker identity presented on lease operations;
// defaults to a fresh uuid per Service.
func WithWorkerID(id string) Option {
	return func(s *Service) { s.workerID = id }
}

// WithMetrics registers prometheus collectors with the registerer; pass
// prometheus.DefaultRegisterer for the global registry.
func WithMetrics(registerer prometheus.Registerer) Option {
	return func(s *Service) { s.metrics = metrics.New(registerer) }
}

// WithTracing configures OpenTelemetry tracing for the service. If outputFile is empty the
// stdout exporter is used; otherwise traces are written to the supplied file path. The function is
// safe to call multiple times – the first successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom SpanExporter. This enables
// integrations with exporters other than the built-in stdout exporter, for example OTLP, Jaeger or
// Zipkin. The function is safe to call multiple times – the first successful initialisation wins.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
