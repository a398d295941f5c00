package dispatch

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/continuum/model"
	"github.com/viant/continuum/policy"
	"github.com/viant/continuum/service/adapter"
	"github.com/viant/continuum/service/adapter/nop"
	"github.com/viant/continuum/service/inbox"
	"github.com/viant/continuum/service/queue"
)

// flaky fails a configurable number of attempts before succeeding.
type flaky struct {
	failures int
	calls    int
}

func (s *flaky) Name() string { return "flaky" }

func (s *flaky) Methods() adapter.Signatures {
	return []adapter.Signature{{Name: "run", Input: reflect.TypeOf(&struct{}{}), Output: reflect.TypeOf(&struct{}{})}}
}

func (s *flaky) Method(string) (adapter.Executable, error) {
	return func(ctx context.Context, in, out interface{}) error {
		s.calls++
		if s.calls <= s.failures {
			return fmt.Errorf("attempt %d failed", s.calls)
		}
		return nil
	}, nil
}

func effectIntent(t *testing.T, world model.WorldID, service, method, correlation string) *model.Intent {
	intent, err := model.NewIntent(&model.EffectSpec{
		Pipeline:       model.PipelineEffect,
		Service:        service,
		Method:         method,
		CorrelationKey: correlation,
	}, model.Origin{World: world, InstanceKey: "i-1", Height: 2})
	if err != nil {
		t.Fatalf("failed to build intent: %v", err)
	}
	return intent
}

func drainReceipt(t *testing.T, inboxes inbox.Service, world model.WorldID) *model.Receipt {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := inboxes.Drain(context.Background(), world, 0)
		assert.NoError(t, err)
		for _, entry := range entries {
			if entry.Kind == inbox.EntryReceipt {
				return entry.Receipt
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no receipt arrived")
	return nil
}

func TestService_EffectDelivery(t *testing.T) {
	ctx := context.Background()
	world := model.NewWorldID("test", "effects")
	registry := adapter.NewRegistry()
	registry.Register(nop.New())
	inboxes := inbox.NewMemory()

	service, err := New(Config{WorkerCount: 1, PollInterval: time.Millisecond},
		queue.NewMemory[model.Intent](), NewEffectHandler(adapter.NewInvoker(registry)), inboxes, nil)
	assert.NoError(t, err)
	assert.NoError(t, service.Start(ctx))
	defer service.Shutdown()

	intent := effectIntent(t, world, "nop", "nop", "slot-1")
	assert.NoError(t, service.Publish(ctx, intent))
	// Recovery republish of the same journaled intent is a no-op.
	assert.NoError(t, service.Publish(ctx, intent))

	receipt := drainReceipt(t, inboxes, world)
	assert.Equal(t, intent.Hash, receipt.IntentHash)
	assert.Equal(t, model.ReceiptOK, receipt.Status)
	assert.Equal(t, "slot-1", receipt.CorrelationKey)

	// Exactly one receipt, despite the duplicate publish.
	entries, err := inboxes.Drain(ctx, world, 0)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestService_RetriesThenErrorReceipt(t *testing.T) {
	ctx := context.Background()
	world := model.NewWorldID("test", "retries")
	registry := adapter.NewRegistry()
	registry.Register(&flaky{failures: 10})
	inboxes := inbox.NewMemory()

	service, err := New(Config{WorkerCount: 1, MaxAttempts: 3, PollInterval: time.Millisecond},
		queue.NewMemory[model.Intent](), NewEffectHandler(adapter.NewInvoker(registry)), inboxes, nil)
	assert.NoError(t, err)
	assert.NoError(t, service.Start(ctx))
	defer service.Shutdown()

	intent := effectIntent(t, world, "flaky", "run", "slot-1")
	assert.NoError(t, service.Publish(ctx, intent))

	receipt := drainReceipt(t, inboxes, world)
	assert.Equal(t, model.ReceiptError, receipt.Status)
	assert.Contains(t, receipt.Error, "failed")
}

func TestService_RetriesUntilSuccess(t *testing.T) {
	ctx := context.Background()
	world := model.NewWorldID("test", "flaky")
	registry := adapter.NewRegistry()
	registry.Register(&flaky{failures: 2})
	inboxes := inbox.NewMemory()

	service, err := New(Config{WorkerCount: 1, MaxAttempts: 5, PollInterval: time.Millisecond},
		queue.NewMemory[model.Intent](), NewEffectHandler(adapter.NewInvoker(registry)), inboxes, nil)
	assert.NoError(t, err)
	assert.NoError(t, service.Start(ctx))
	defer service.Shutdown()

	intent := effectIntent(t, world, "flaky", "run", "")
	assert.NoError(t, service.Publish(ctx, intent))

	receipt := drainReceipt(t, inboxes, world)
	assert.Equal(t, model.ReceiptOK, receipt.Status)
}

func TestService_PolicyBlocksEffect(t *testing.T) {
	ctx := policy.WithPolicy(context.Background(), &policy.Policy{Mode: policy.ModeDeny})
	world := model.NewWorldID("test", "policy")
	registry := adapter.NewRegistry()
	registry.Register(nop.New())
	inboxes := inbox.NewMemory()

	service, err := New(Config{WorkerCount: 1, PollInterval: time.Millisecond},
		queue.NewMemory[model.Intent](), NewEffectHandler(adapter.NewInvoker(registry)), inboxes, nil)
	assert.NoError(t, err)
	assert.NoError(t, service.Start(ctx))
	defer service.Shutdown()

	intent := effectIntent(t, world, "nop", "nop", "slot-1")
	assert.NoError(t, service.Publish(ctx, intent))

	receipt := drainReceipt(t, inboxes, world)
	assert.Equal(t, model.ReceiptError, receipt.Status)
	assert.Contains(t, receipt.Error, "blocked by policy")
}

func TestService_TimerFires(t *testing.T) {
	ctx := context.Background()
	world := model.NewWorldID("test", "timers")
	inboxes := inbox.NewMemory()

	service, err := New(Config{WorkerCount: 1, PollInterval: time.Millisecond},
		queue.NewMemory[model.Intent](), NewTimerHandler(), inboxes, nil)
	assert.NoError(t, err)
	assert.NoError(t, service.Start(ctx))
	defer service.Shutdown()

	dueAt := time.Now().Add(20 * time.Millisecond).UTC()
	intent, err := model.NewIntent(&model.EffectSpec{
		Pipeline:       model.PipelineTimer,
		DueAt:          &dueAt,
		CorrelationKey: "wakeup",
	}, model.Origin{World: world, InstanceKey: "i-1", Height: 3})
	assert.NoError(t, err)
	assert.NoError(t, service.Publish(ctx, intent))

	receipt := drainReceipt(t, inboxes, world)
	assert.Equal(t, model.ReceiptOK, receipt.Status)
	// The fire time in the receipt is the journaled due time, not the clock.
	assert.Equal(t, dueAt.Format(time.RFC3339Nano), receipt.Output["firedAt"])
}

func TestService_FabricDelivery(t *testing.T) {
	ctx := context.Background()
	origin := model.NewWorldID("test", "origin")
	destination := model.NewWorldID("test", "destination")
	inboxes := inbox.NewMemory()

	service, err := New(Config{WorkerCount: 1, PollInterval: time.Millisecond},
		queue.NewMemory[model.Intent](), NewFabricHandler(inboxes), inboxes, nil)
	assert.NoError(t, err)
	assert.NoError(t, service.Start(ctx))
	defer service.Shutdown()

	intent, err := model.NewIntent(&model.EffectSpec{
		Pipeline:       model.PipelineFabric,
		Destination:    &destination,
		EventType:      "order.created",
		Params:         map[string]interface{}{"order": map[string]interface{}{"id": "o-1"}},
		CorrelationKey: "reply-1",
	}, model.Origin{World: origin, InstanceKey: "i-1", Height: 4})
	assert.NoError(t, err)
	assert.NoError(t, service.Publish(ctx, intent))

	receipt := drainReceipt(t, inboxes, origin)
	assert.Equal(t, model.ReceiptDelivered, receipt.Status)

	// The message landed exactly once in the destination inbox.
	entries, err := inboxes.Drain(ctx, destination, 0)
	assert.NoError(t, err)
	if assert.Len(t, entries, 1) {
		assert.Equal(t, inbox.EntryIngress, entries[0].Kind)
		assert.Equal(t, intent.Hash, entries[0].Ingress.MessageID)
		assert.Equal(t, origin.Key(), entries[0].Ingress.Source)
	}
}
