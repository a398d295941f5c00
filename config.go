package continuum

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is a serialisable representation of the runtime configuration.  It
// can be populated from YAML and overridden from the environment; the
// zero-value is useful – all nested fields inherit their package defaults.
type Config struct {
	// BaseURL roots the durable layout (journal, lease, baseline, inbox,
	// queues, blobs).  Empty selects in-memory backends.
	BaseURL string `json:"baseURL,omitempty" yaml:"baseURL,omitempty" env:"CONTINUUM_BASE_URL"`

	Worker   WorkerConfig   `json:"worker" yaml:"worker"`
	Dispatch DispatchConfig `json:"dispatch" yaml:"dispatch"`
	Reaper   ReaperConfig   `json:"reaper" yaml:"reaper"`
}

// WorkerConfig configures the per-world writer loops.
type WorkerConfig struct {
	LeaseTTL         time.Duration `json:"leaseTTL" yaml:"leaseTTL" env:"CONTINUUM_WORKER_LEASE_TTL"`
	CycleInterval    time.Duration `json:"cycleInterval" yaml:"cycleInterval" env:"CONTINUUM_WORKER_CYCLE_INTERVAL"`
	DrainBatch       int           `json:"drainBatch" yaml:"drainBatch" env:"CONTINUUM_WORKER_DRAIN_BATCH"`
	SnapshotEvery    uint64        `json:"snapshotEvery" yaml:"snapshotEvery" env:"CONTINUUM_WORKER_SNAPSHOT_EVERY"`
	PromoteBaselines bool          `json:"promoteBaselines" yaml:"promoteBaselines" env:"CONTINUUM_WORKER_PROMOTE_BASELINES"`
	VerifyOnRestore  bool          `json:"verifyOnRestore" yaml:"verifyOnRestore" env:"CONTINUUM_WORKER_VERIFY_ON_RESTORE"`
}

// DispatchConfig configures the delivery pipeline workers.
type DispatchConfig struct {
	WorkerCount  int           `json:"workers" yaml:"workers" env:"CONTINUUM_DISPATCH_WORKERS"`
	ClaimTTL     time.Duration `json:"claimTTL" yaml:"claimTTL" env:"CONTINUUM_DISPATCH_CLAIM_TTL"`
	MaxAttempts  int           `json:"maxAttempts" yaml:"maxAttempts" env:"CONTINUUM_DISPATCH_MAX_ATTEMPTS"`
	PollInterval time.Duration `json:"pollInterval" yaml:"pollInterval" env:"CONTINUUM_DISPATCH_POLL_INTERVAL"`
}

// ReaperConfig configures the claim-expiry sweep shared by the pipelines.
type ReaperConfig struct {
	Interval time.Duration `json:"interval" yaml:"interval" env:"CONTINUUM_REAPER_INTERVAL"`
}

// DefaultConfig returns a Config populated with the package defaults.
// Callers may modify the returned struct before passing it to New.
func DefaultConfig() *Config {
	return &Config{
		Worker: WorkerConfig{
			LeaseTTL:         10 * time.Second,
			CycleInterval:    20 * time.Millisecond,
			DrainBatch:       64,
			SnapshotEvery:    64,
			PromoteBaselines: true,
			VerifyOnRestore:  true,
		},
		Dispatch: DispatchConfig{
			WorkerCount:  2,
			ClaimTTL:     30 * time.Second,
			MaxAttempts:  3,
			PollInterval: 20 * time.Millisecond,
		},
		Reaper: ReaperConfig{Interval: time.Second},
	}
}

// LoadConfig builds a Config from optional YAML bytes with environment
// overrides applied on top.
func LoadConfig(data []byte) (*Config, error) {
	config := DefaultConfig()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate returns an error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Worker.LeaseTTL <= 0 {
		return fmt.Errorf("worker.leaseTTL must be > 0")
	}
	if c.Worker.DrainBatch < 0 {
		return fmt.Errorf("worker.drainBatch must be >= 0")
	}
	if c.Dispatch.WorkerCount <= 0 {
		return fmt.Errorf("dispatch.workers must be > 0")
	}
	if c.Dispatch.MaxAttempts <= 0 {
		return fmt.Errorf("dispatch.maxAttempts must be > 0")
	}
	return nil
}
