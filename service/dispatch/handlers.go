package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viant/continuum/internal/clock"
	"github.com/viant/continuum/model"
	"github.com/viant/continuum/policy"
	"github.com/viant/continuum/service/adapter"
	"github.com/viant/continuum/service/inbox"
)

// EffectHandler invokes registered adapters for effect intents.
type EffectHandler struct {
	invoker *adapter.Invoker
}

// Ensure EffectHandler implements Handler
var _ Handler = (*EffectHandler)(nil)

// NewEffectHandler creates an effect handler over the adapter invoker.
func NewEffectHandler(invoker *adapter.Invoker) *EffectHandler {
	return &EffectHandler{invoker: invoker}
}

func (h *EffectHandler) Pipeline() model.Pipeline {
	return model.PipelineEffect
}

// Handle invokes the adapter.  A deadline overrun is a terminal timeout
// receipt; any other invocation error is retryable.  An invocation blocked
// by a context policy is a terminal error receipt, delivered to the owning
// instance as domain data.
func (h *EffectHandler) Handle(ctx context.Context, intent *model.Intent) (*model.Receipt, error) {
	action := intent.Service + "." + intent.Method
	if p := policy.FromContext(ctx); !p.Approves(ctx, action, intent.Params) {
		return &model.Receipt{
			IntentHash:     intent.Hash,
			Status:         model.ReceiptError,
			Error:          fmt.Sprintf("invocation %s blocked by policy", action),
			CorrelationKey: intent.CorrelationKey,
		}, nil
	}
	if intent.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(intent.TimeoutMs)*time.Millisecond)
		defer cancel()
	}
	output, err := h.invoker.Invoke(ctx, intent)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return &model.Receipt{
				IntentHash:     intent.Hash,
				Status:         model.ReceiptTimeout,
				Error:          err.Error(),
				CorrelationKey: intent.CorrelationKey,
			}, nil
		}
		return nil, err
	}
	return &model.Receipt{
		IntentHash:     intent.Hash,
		Status:         model.ReceiptOK,
		Output:         output,
		CorrelationKey: intent.CorrelationKey,
	}, nil
}

// TimerHandler fires timer intents once their due time arrives.
type TimerHandler struct{}

// Ensure TimerHandler implements Handler
var _ Handler = (*TimerHandler)(nil)

// NewTimerHandler creates a timer handler.
func NewTimerHandler() *TimerHandler {
	return &TimerHandler{}
}

func (h *TimerHandler) Pipeline() model.Pipeline {
	return model.PipelineTimer
}

// Handle waits until the intent's due time.  The receipt output carries the
// journaled due time, not the wall clock, so folding it is deterministic.
func (h *TimerHandler) Handle(ctx context.Context, intent *model.Intent) (*model.Receipt, error) {
	if intent.DueAt == nil {
		return nil, fmt.Errorf("timer intent %s has no due time", intent.Hash)
	}
	if wait := intent.DueAt.Sub(clock.Now()); wait > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return &model.Receipt{
		IntentHash:     intent.Hash,
		Status:         model.ReceiptOK,
		Output:         map[string]interface{}{"firedAt": intent.DueAt.UTC().Format(time.RFC3339Nano)},
		CorrelationKey: intent.CorrelationKey,
	}, nil
}

// FabricHandler delivers cross-world messages into the destination world's
// inbox.  The dedupe check runs inside the destination inbox's critical
// section, so redundant sends collapse to one entry.
type FabricHandler struct {
	inboxes inbox.Service
}

// Ensure FabricHandler implements Handler
var _ Handler = (*FabricHandler)(nil)

// NewFabricHandler creates a fabric handler posting into inboxes.
func NewFabricHandler(inboxes inbox.Service) *FabricHandler {
	return &FabricHandler{inboxes: inboxes}
}

func (h *FabricHandler) Pipeline() model.Pipeline {
	return model.PipelineFabric
}

// Handle enqueues the message for the destination world.  A duplicate means
// an earlier attempt already landed it; either way the origin gets exactly
// one delivered receipt.
func (h *FabricHandler) Handle(ctx context.Context, intent *model.Intent) (*model.Receipt, error) {
	if intent.Destination == nil || intent.Destination.IsZero() {
		return nil, fmt.Errorf("fabric intent %s has no destination", intent.Hash)
	}
	ingress := &model.Ingress{
		EventType: intent.EventType,
		MessageID: intent.MessageID(),
		Payload:   intent.Params,
		Source:    intent.Origin.World.Key(),
	}
	err := h.inboxes.Enqueue(ctx, *intent.Destination, inbox.NewIngressEntry(ingress, clock.Now()))
	if err != nil && !errors.Is(err, inbox.ErrDuplicate) {
		return nil, err
	}
	return &model.Receipt{
		IntentHash:     intent.Hash,
		Status:         model.ReceiptDelivered,
		CorrelationKey: intent.CorrelationKey,
	}, nil
}
