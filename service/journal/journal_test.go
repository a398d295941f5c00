package journal

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/afs"
	"github.com/viant/continuum/model"
	"github.com/viant/continuum/service/lease"
)

func newStores(t *testing.T) map[string]Store {
	tempDir, err := os.MkdirTemp("", "journal-test")
	if err != nil {
		t.Fatalf("failed to create temp directory: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })
	fsStore, err := NewFsStore(afs.New(), tempDir)
	if err != nil {
		t.Fatalf("failed to create fs store: %v", err)
	}
	return map[string]Store{
		"memory": NewMemoryStore(),
		"fs":     fsStore,
	}
}

func ingressRecord(messageID string) *model.Record {
	return model.NewIngressRecord(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), &model.Ingress{
		EventType: "order.created",
		MessageID: messageID,
		Payload:   map[string]interface{}{"order": map[string]interface{}{"id": messageID}},
	})
}

func TestStore_AppendHeadTail(t *testing.T) {
	ctx := context.Background()
	world := model.NewWorldID("test", "alpha")

	for name, store := range newStores(t) {
		head, err := store.Head(ctx, world)
		assert.NoError(t, err, name)
		assert.Equal(t, uint64(0), head, name)

		height, err := store.Append(ctx, world, 0, ingressRecord("m-1"))
		assert.NoError(t, err, name)
		assert.Equal(t, uint64(1), height, name)

		height, err = store.Append(ctx, world, 1, ingressRecord("m-2"))
		assert.NoError(t, err, name)
		assert.Equal(t, uint64(2), height, name)

		// An append against a moved head is refused.
		_, err = store.Append(ctx, world, 1, ingressRecord("m-3"))
		assert.ErrorIs(t, err, ErrStaleHeight, name)

		head, err = store.Head(ctx, world)
		assert.NoError(t, err, name)
		assert.Equal(t, uint64(2), head, name)

		record, err := store.Get(ctx, world, 1)
		assert.NoError(t, err, name)
		assert.Equal(t, uint64(1), record.Height, name)
		assert.Equal(t, "m-1", record.Ingress.MessageID, name)

		_, err = store.Get(ctx, world, 3)
		assert.ErrorIs(t, err, ErrNotFound, name)

		tail, err := store.Tail(ctx, world, 1)
		assert.NoError(t, err, name)
		if assert.Len(t, tail, 1, name) {
			assert.Equal(t, "m-2", tail[0].Ingress.MessageID, name)
		}

		tail, err = store.Tail(ctx, world, 2)
		assert.NoError(t, err, name)
		assert.Empty(t, tail, name)
	}
}

func TestService_AppendFencing(t *testing.T) {
	ctx := context.Background()
	world := model.NewWorldID("test", "fenced")
	manager := lease.NewManager(lease.NewMemoryStore())
	service := New(NewMemoryStore(), manager)

	record, err := manager.Acquire(ctx, world, "worker-1", time.Minute)
	assert.NoError(t, err)

	height, err := service.Append(ctx, world, record.Epoch, 0, ingressRecord("m-1"))
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), height)

	// A new holder bumps the epoch; the old writer is fenced before any
	// height comparison happens.
	assert.NoError(t, manager.Release(ctx, world, "worker-1", record.Epoch))
	next, err := manager.Acquire(ctx, world, "worker-2", time.Minute)
	assert.NoError(t, err)

	_, err = service.Append(ctx, world, record.Epoch, 1, ingressRecord("m-2"))
	assert.ErrorIs(t, err, lease.ErrFenced)

	height, err = service.Append(ctx, world, next.Epoch, 1, ingressRecord("m-2"))
	assert.NoError(t, err)
	assert.Equal(t, uint64(2), height)
}
