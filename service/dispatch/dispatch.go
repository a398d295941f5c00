// Package dispatch runs the delivery side of the runtime: workers claim
// journaled intents from the durable pipelines, perform the external work
// through a pipeline handler and post exactly one terminal receipt back to
// the origin world's inbox.  Delivery is at-least-once; the queue dedupe
// table and the inbox message-id check collapse retries to one outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/viant/continuum/internal/clock"
	"github.com/viant/continuum/metrics"
	"github.com/viant/continuum/model"
	"github.com/viant/continuum/service/inbox"
	"github.com/viant/continuum/service/queue"
	"github.com/viant/continuum/tracing"
)

// Config represents dispatch service configuration
type Config struct {
	// WorkerCount is the number of workers per pipeline
	WorkerCount int

	// ClaimTTL is how long a claim stays owned before the reaper may requeue it
	ClaimTTL time.Duration

	// MaxAttempts is how many delivery attempts precede a terminal error receipt
	MaxAttempts int

	// PollInterval is the idle wait between claim attempts
	PollInterval time.Duration
}

// DefaultConfig returns the default dispatch configuration
func DefaultConfig() Config {
	return Config{
		WorkerCount:  2,
		ClaimTTL:     30 * time.Second,
		MaxAttempts:  3,
		PollInterval: 20 * time.Millisecond,
	}
}

// Handler performs one pipeline's external work for a claimed intent.  A
// returned error means the attempt failed and may be retried; a returned
// receipt is the terminal outcome.
type Handler interface {
	Pipeline() model.Pipeline
	Handle(ctx context.Context, intent *model.Intent) (*model.Receipt, error)
}

// Service owns the worker pools for one pipeline.
type Service struct {
	config  Config
	queue   queue.Pipeline[model.Intent]
	handler Handler
	inboxes inbox.Service
	metrics *metrics.Metrics

	owner      string
	workerWg   sync.WaitGroup
	shutdownCh chan struct{}
	shutdownMu sync.Once
}

// New creates a dispatch service for one pipeline.
func New(config Config, pipeline queue.Pipeline[model.Intent], handler Handler, inboxes inbox.Service, collectors *metrics.Metrics) (*Service, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if inboxes == nil {
		return nil, fmt.Errorf("inbox service is required")
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}
	if config.ClaimTTL <= 0 {
		config.ClaimTTL = DefaultConfig().ClaimTTL
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	return &Service{
		config:     config,
		queue:      pipeline,
		handler:    handler,
		inboxes:    inboxes,
		metrics:    collectors,
		owner:      fmt.Sprintf("dispatch-%s", handler.Pipeline()),
		shutdownCh: make(chan struct{}),
	}, nil
}

// Publish enqueues a journaled intent for delivery.  Re-publishing after a
// crash is the expected recovery path; known keys are no-ops.
func (s *Service) Publish(ctx context.Context, intent *model.Intent) error {
	added, err := s.queue.Enqueue(ctx, intent.Hash, intent)
	if err != nil {
		return fmt.Errorf("failed to enqueue intent %s: %w", intent.Hash, err)
	}
	if !added {
		s.metrics.DedupedInc(string(s.handler.Pipeline()))
	}
	return nil
}

// Start launches the worker pool.
func (s *Service) Start(ctx context.Context) error {
	for i := 0; i < s.config.WorkerCount; i++ {
		s.workerWg.Add(1)
		go s.run(ctx, i)
	}
	return nil
}

func (s *Service) run(ctx context.Context, id int) {
	defer s.workerWg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdownCh:
			return
		default:
		}
		item, err := s.queue.Claim(ctx, fmt.Sprintf("%s-%d", s.owner, id), s.config.ClaimTTL)
		if err != nil {
			log.Printf("dispatch %s worker %d: failed to claim: %v", s.handler.Pipeline(), id, err)
			time.Sleep(s.config.PollInterval)
			continue
		}
		if item == nil {
			select {
			case <-ctx.Done():
				return
			case <-s.shutdownCh:
				return
			case <-time.After(s.config.PollInterval):
			}
			continue
		}
		if err := s.process(ctx, item); err != nil {
			log.Printf("dispatch %s worker %d: failed to process %s: %v", s.handler.Pipeline(), id, item.Key, err)
		}
	}
}

// process performs one delivery attempt for a claimed intent.
func (s *Service) process(ctx context.Context, item *queue.Item[model.Intent]) (err error) {
	pipeline := string(s.handler.Pipeline())
	s.metrics.ClaimInc(pipeline)

	ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("dispatch.%s %s", pipeline, item.Key), "INTERNAL")
	defer tracing.EndSpan(span, err)
	span.WithAttributes(map[string]string{"intent.hash": item.Key, "pipeline": pipeline})

	intent := &item.Data
	receipt, handleErr := s.handler.Handle(ctx, intent)
	if handleErr != nil {
		if item.Attempts+1 < s.config.MaxAttempts {
			s.metrics.RequeuedInc(pipeline, 1)
			return s.queue.Release(ctx, item.Key)
		}
		// Out of attempts: the failure becomes the terminal receipt.  It is
		// domain data for the owning instance, not a runtime fault.
		receipt = &model.Receipt{
			IntentHash:     intent.Hash,
			Status:         model.ReceiptError,
			Error:          handleErr.Error(),
			CorrelationKey: intent.CorrelationKey,
		}
	}
	return s.finish(ctx, intent, receipt)
}

// finish posts the receipt to the origin world and records completion.  The
// receipt is enqueued before the dedupe marker: a crash between the two
// retries the whole delivery, and the inbox refuses the duplicate receipt.
func (s *Service) finish(ctx context.Context, intent *model.Intent, receipt *model.Receipt) error {
	pipeline := string(s.handler.Pipeline())
	entry := inbox.NewReceiptEntry(receipt, clock.Now())
	if err := s.inboxes.Enqueue(ctx, intent.Origin.World, entry); err != nil {
		if !errors.Is(err, inbox.ErrDuplicate) {
			return fmt.Errorf("failed to post receipt for %s: %w", intent.Hash, err)
		}
		s.metrics.DedupedInc(pipeline)
	}
	first, err := s.queue.Complete(ctx, intent.Hash)
	if err != nil {
		return fmt.Errorf("failed to complete %s: %w", intent.Hash, err)
	}
	if first {
		s.metrics.DeliveredInc(pipeline, string(receipt.Status))
	} else {
		s.metrics.DedupedInc(pipeline)
	}
	return nil
}

// Shutdown stops the worker pool and waits for in-progress deliveries.
func (s *Service) Shutdown() {
	s.shutdownMu.Do(func() { close(s.shutdownCh) })
	s.workerWg.Wait()
}
