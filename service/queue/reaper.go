package queue

import (
	"context"
	"log"
	"time"
)

// ReaperConfig configures the claim-expiry sweep.
type ReaperConfig struct {
	// Interval is how often expired claims are swept back to pending.
	Interval time.Duration
}

// DefaultReaperConfig returns the default reaper configuration.
func DefaultReaperConfig() ReaperConfig {
	return ReaperConfig{Interval: time.Second}
}

// Requeuer is the slice of Pipeline the reaper needs.
type Requeuer interface {
	RequeueExpired(ctx context.Context) (int, error)
}

// Reaper periodically returns expired claims to pending so work owned by a
// crashed or stalled worker is retried instead of stranded.
type Reaper struct {
	config     ReaperConfig
	pipelines  []Requeuer
	onRequeued func(count int)
	shutdownCh chan struct{}
}

// NewReaper creates a reaper sweeping the supplied pipelines.
func NewReaper(config ReaperConfig, pipelines ...Requeuer) *Reaper {
	if config.Interval <= 0 {
		config.Interval = DefaultReaperConfig().Interval
	}
	return &Reaper{config: config, pipelines: pipelines, shutdownCh: make(chan struct{})}
}

// OnRequeued registers a callback invoked with the count of each non-empty sweep.
func (r *Reaper) OnRequeued(callback func(count int)) {
	r.onRequeued = callback
}

// Start begins the sweep loop and blocks until ctx is done or Shutdown.
func (r *Reaper) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.shutdownCh:
			return nil
		case <-ticker.C:
			if err := r.sweep(ctx); err != nil {
				log.Printf("failed to requeue expired claims: %v", err)
			}
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) error {
	total := 0
	for _, pipeline := range r.pipelines {
		moved, err := pipeline.RequeueExpired(ctx)
		if err != nil {
			return err
		}
		total += moved
	}
	if total > 0 && r.onRequeued != nil {
		r.onRequeued(total)
	}
	return nil
}

// Shutdown stops the sweep loop.
func (r *Reaper) Shutdown() {
	close(r.shutdownCh)
}
