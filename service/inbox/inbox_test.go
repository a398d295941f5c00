package inbox

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/afs"
	"github.com/viant/continuum/model"
)

func newServices(t *testing.T) map[string]Service {
	tempDir, err := os.MkdirTemp("", "inbox-test")
	if err != nil {
		t.Fatalf("failed to create temp directory: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })
	fsInbox, err := NewFs(afs.New(), tempDir)
	if err != nil {
		t.Fatalf("failed to create fs inbox: %v", err)
	}
	return map[string]Service{
		"memory": NewMemory(),
		"fs":     fsInbox,
	}
}

func ingressEntry(messageID string) *Entry {
	return NewIngressEntry(&model.Ingress{
		EventType: "order.created",
		MessageID: messageID,
		Payload:   map[string]interface{}{"order": map[string]interface{}{"id": messageID}},
	}, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
}

func TestService_EnqueueDrainAck(t *testing.T) {
	ctx := context.Background()
	world := model.NewWorldID("test", "alpha")

	for name, service := range newServices(t) {
		assert.NoError(t, service.Enqueue(ctx, world, ingressEntry("m-1")), name)
		assert.NoError(t, service.Enqueue(ctx, world, ingressEntry("m-2")), name)
		assert.NoError(t, service.Enqueue(ctx, world, ingressEntry("m-3")), name)

		entries, err := service.Drain(ctx, world, 2)
		assert.NoError(t, err, name)
		if assert.Len(t, entries, 2, name) {
			assert.Equal(t, "m-1", entries[0].ID, name)
			assert.Equal(t, "m-2", entries[1].ID, name)
			assert.Less(t, entries[0].Seq, entries[1].Seq, name)
		}

		// Drain does not remove: the same entries come back until acked.
		entries, err = service.Drain(ctx, world, 0)
		assert.NoError(t, err, name)
		assert.Len(t, entries, 3, name)

		assert.NoError(t, service.Ack(ctx, world, "m-1", "m-2"), name)

		entries, err = service.Drain(ctx, world, 0)
		assert.NoError(t, err, name)
		if assert.Len(t, entries, 1, name) {
			assert.Equal(t, "m-3", entries[0].ID, name)
		}

		// An acked id is still deduped.
		assert.ErrorIs(t, service.Enqueue(ctx, world, ingressEntry("m-1")), ErrDuplicate, name)
	}
}

func TestService_FabricDedupe(t *testing.T) {
	ctx := context.Background()
	world := model.NewWorldID("test", "dedupe")

	for name, service := range newServices(t) {
		// N redundant sends of the same fabric message race the inbox;
		// exactly one entry lands.
		var wg sync.WaitGroup
		results := make([]error, 5)
		for i := range results {
			wg.Add(1)
			go func(index int) {
				defer wg.Done()
				results[index] = service.Enqueue(ctx, world, ingressEntry("m-dup"))
			}(i)
		}
		wg.Wait()

		inserted := 0
		for _, err := range results {
			if err == nil {
				inserted++
			} else {
				assert.ErrorIs(t, err, ErrDuplicate, name)
			}
		}
		assert.Equal(t, 1, inserted, name)

		entries, err := service.Drain(ctx, world, 0)
		assert.NoError(t, err, name)
		assert.Len(t, entries, 1, name)
	}
}

func TestService_PathShapedIdsStayScoped(t *testing.T) {
	ctx := context.Background()
	first := model.NewWorldID("test", "first")
	second := model.NewWorldID("test", "second")
	// An id shaped like a relative path must not plant a dedupe marker in
	// another world's seen set.
	hostile := "../../../" + second.Key() + "/inbox/seen/m-1"

	for name, service := range newServices(t) {
		assert.NoError(t, service.Enqueue(ctx, first, ingressEntry(hostile)), name)

		// The other world's own m-1 is unaffected and still dedupes normally.
		assert.NoError(t, service.Enqueue(ctx, second, ingressEntry("m-1")), name)
		assert.ErrorIs(t, service.Enqueue(ctx, second, ingressEntry("m-1")), ErrDuplicate, name)

		// The path-shaped id dedupes only within its own world.
		assert.ErrorIs(t, service.Enqueue(ctx, first, ingressEntry(hostile)), ErrDuplicate, name)
		entries, err := service.Drain(ctx, second, 0)
		assert.NoError(t, err, name)
		assert.Len(t, entries, 1, name)
	}
}

func TestService_ReceiptEntries(t *testing.T) {
	ctx := context.Background()
	world := model.NewWorldID("test", "receipts")
	service := NewMemory()

	receipt := &model.Receipt{IntentHash: "abc123", Status: model.ReceiptOK}
	assert.NoError(t, service.Enqueue(ctx, world, NewReceiptEntry(receipt, time.Now())))

	// A retried delivery posting the same receipt is refused.
	assert.ErrorIs(t, service.Enqueue(ctx, world, NewReceiptEntry(receipt, time.Now())), ErrDuplicate)

	entries, err := service.Drain(ctx, world, 0)
	assert.NoError(t, err)
	if assert.Len(t, entries, 1) {
		assert.Equal(t, EntryReceipt, entries[0].Kind)
		assert.Equal(t, "abc123", entries[0].Receipt.IntentHash)
	}
}
