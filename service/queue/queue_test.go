package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/afs"
	"github.com/viant/continuum/internal/clock"
)

type payload struct {
	Service string `json:"service"`
	Attempt int    `json:"attempt"`
}

func newPipelines(t *testing.T) map[string]Pipeline[payload] {
	tempDir, err := os.MkdirTemp("", "queue-test")
	if err != nil {
		t.Fatalf("failed to create temp directory: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })
	fsQueue, err := NewFs[payload](afs.New(), tempDir)
	if err != nil {
		t.Fatalf("failed to create fs queue: %v", err)
	}
	return map[string]Pipeline[payload]{
		"memory": NewMemory[payload](),
		"fs":     fsQueue,
	}
}

func TestPipeline_Lifecycle(t *testing.T) {
	ctx := context.Background()
	for name, pipeline := range newPipelines(t) {
		added, err := pipeline.Enqueue(ctx, "intent-1", &payload{Service: "printer"})
		assert.NoError(t, err, name)
		assert.True(t, added, name)

		// Re-enqueue of a known key is a no-op.
		added, err = pipeline.Enqueue(ctx, "intent-1", &payload{Service: "printer"})
		assert.NoError(t, err, name)
		assert.False(t, added, name)

		item, err := pipeline.Claim(ctx, "worker-1", time.Minute)
		assert.NoError(t, err, name)
		if assert.NotNil(t, item, name) {
			assert.Equal(t, "intent-1", item.Key, name)
			assert.Equal(t, "worker-1", item.Owner, name)
		}

		// Key is inflight, still deduped.
		added, err = pipeline.Enqueue(ctx, "intent-1", &payload{Service: "printer"})
		assert.NoError(t, err, name)
		assert.False(t, added, name)

		// Nothing else is pending.
		item, err = pipeline.Claim(ctx, "worker-1", time.Minute)
		assert.NoError(t, err, name)
		assert.Nil(t, item, name)

		first, err := pipeline.Complete(ctx, "intent-1")
		assert.NoError(t, err, name)
		assert.True(t, first, name)

		// Only the first completion counts.
		again, err := pipeline.Complete(ctx, "intent-1")
		assert.NoError(t, err, name)
		assert.False(t, again, name)

		done, err := pipeline.IsComplete(ctx, "intent-1")
		assert.NoError(t, err, name)
		assert.True(t, done, name)

		// A completed key can never re-enter the queue.
		added, err = pipeline.Enqueue(ctx, "intent-1", &payload{Service: "printer"})
		assert.NoError(t, err, name)
		assert.False(t, added, name)
	}
}

func TestPipeline_ReleaseRetry(t *testing.T) {
	ctx := context.Background()
	for name, pipeline := range newPipelines(t) {
		_, err := pipeline.Enqueue(ctx, "intent-1", &payload{Service: "exec"})
		assert.NoError(t, err, name)

		item, err := pipeline.Claim(ctx, "worker-1", time.Minute)
		assert.NoError(t, err, name)
		assert.NotNil(t, item, name)

		assert.NoError(t, pipeline.Release(ctx, "intent-1"), name)
		assert.ErrorIs(t, pipeline.Release(ctx, "intent-1"), ErrNotClaimed, name)

		item, err = pipeline.Claim(ctx, "worker-2", time.Minute)
		assert.NoError(t, err, name)
		if assert.NotNil(t, item, name) {
			assert.Equal(t, 1, item.Attempts, name)
			assert.Equal(t, "worker-2", item.Owner, name)
		}
	}
}

func TestPipeline_RequeueExpired(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	current := base
	clock.NowFunc = func() time.Time { return current }
	defer func() { clock.NowFunc = time.Now }()

	ctx := context.Background()
	for name, pipeline := range newPipelines(t) {
		_, err := pipeline.Enqueue(ctx, "intent-1", &payload{Service: "exec"})
		assert.NoError(t, err, name)

		item, err := pipeline.Claim(ctx, "worker-1", 30*time.Second)
		assert.NoError(t, err, name)
		assert.NotNil(t, item, name)

		// Claim still live: nothing to sweep.
		moved, err := pipeline.RequeueExpired(ctx)
		assert.NoError(t, err, name)
		assert.Equal(t, 0, moved, name)

		// Owner never completes; the claim lapses and the sweep returns the
		// item to pending for another worker.
		current = base.Add(time.Minute)
		moved, err = pipeline.RequeueExpired(ctx)
		assert.NoError(t, err, name)
		assert.Equal(t, 1, moved, name)

		item, err = pipeline.Claim(ctx, "worker-2", 30*time.Second)
		assert.NoError(t, err, name)
		if assert.NotNil(t, item, name) {
			assert.Equal(t, 1, item.Attempts, name)
		}
		current = base
	}
}

func TestPipeline_CrashRetryConvergesToOneOutcome(t *testing.T) {
	ctx := context.Background()
	for name, pipeline := range newPipelines(t) {
		_, err := pipeline.Enqueue(ctx, "intent-1", &payload{Service: "printer"})
		assert.NoError(t, err, name)

		// Repeated claim/release cycles simulate workers crashing before
		// completing; the final successful delivery completes exactly once.
		for attempt := 0; attempt < 3; attempt++ {
			item, err := pipeline.Claim(ctx, "worker", time.Minute)
			assert.NoError(t, err, name)
			assert.NotNil(t, item, name)
			assert.NoError(t, pipeline.Release(ctx, "intent-1"), name)
		}

		item, err := pipeline.Claim(ctx, "worker", time.Minute)
		assert.NoError(t, err, name)
		if assert.NotNil(t, item, name) {
			assert.Equal(t, 3, item.Attempts, name)
		}
		first, err := pipeline.Complete(ctx, "intent-1")
		assert.NoError(t, err, name)
		assert.True(t, first, name)

		// A redelivered duplicate finds the dedupe marker.
		again, err := pipeline.Complete(ctx, "intent-1")
		assert.NoError(t, err, name)
		assert.False(t, again, name)
	}
}

func TestReaper_Sweep(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	current := base
	clock.NowFunc = func() time.Time { return current }
	defer func() { clock.NowFunc = time.Now }()

	ctx := context.Background()
	pipeline := NewMemory[payload]()
	_, err := pipeline.Enqueue(ctx, "intent-1", &payload{Service: "exec"})
	assert.NoError(t, err)
	_, err = pipeline.Claim(ctx, "worker-1", time.Second)
	assert.NoError(t, err)
	current = base.Add(time.Minute)

	requeued := make(chan int, 1)
	reaper := NewReaper(ReaperConfig{Interval: 5 * time.Millisecond}, pipeline)
	reaper.OnRequeued(func(count int) {
		select {
		case requeued <- count:
		default:
		}
	})
	go func() { _ = reaper.Start(ctx) }()
	defer reaper.Shutdown()

	select {
	case count := <-requeued:
		assert.Equal(t, 1, count)
	case <-time.After(time.Second):
		t.Fatal("reaper did not requeue expired claim")
	}
}
