package core

import (
	"fmt"
	"strings"
	"time"
)

// WorkerConfig tunes the state machine loop shared by both workflows.
type WorkerConfig struct {
	BatchSize     int           `koanf:"batch_size" mapstructure:"batch_size"`
	PollInterval  time.Duration `koanf:"poll_interval" mapstructure:"poll_interval"`
	MaxStateCount int           `koanf:"max_state_count" mapstructure:"max_state_count"`
}

type Config struct {
	// RuntimeID identifies this runtime instance as the lease owner. Two
	// runtimes sharing a database must use distinct ids.
	RuntimeID string `koanf:"runtime_id" mapstructure:"runtime_id"`

	LeaseDuration time.Duration `koanf:"lease_duration" mapstructure:"lease_duration"`

	Worker WorkerConfig `koanf:"worker" mapstructure:"worker"`

	// RequestTimeLimit caps how long a holder request may stay pending at
	// the issuer before it is errored out.
	RequestTimeLimit time.Duration `koanf:"request_time_limit" mapstructure:"request_time_limit"`
}

func DefaultConfig() Config {
	return Config{
		RuntimeID:     "credstate",
		LeaseDuration: 60 * time.Second,
		Worker: WorkerConfig{
			BatchSize:     20,
			PollInterval:  time.Second,
			MaxStateCount: 7,
		},
		RequestTimeLimit: time.Hour,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.RuntimeID) == "" {
		return fmt.Errorf("core: runtime_id is required")
	}
	if c.LeaseDuration <= 0 {
		return fmt.Errorf("core: lease_duration must be positive")
	}
	if c.Worker.BatchSize <= 0 {
		return fmt.Errorf("core: worker.batch_size must be positive")
	}
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("core: worker.poll_interval must be positive")
	}
	if c.Worker.MaxStateCount <= 0 {
		return fmt.Errorf("core: worker.max_state_count must be positive")
	}
	if c.RequestTimeLimit <= 0 {
		return fmt.Errorf("core: request_time_limit must be positive")
	}
	return nil
}
