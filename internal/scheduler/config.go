package scheduler

import (
	"time"

	"github.com/agencyops/credcore/internal/config"
)

// Config controls the refill engine schedule and batch sizes.
type Config struct {
	Enabled     bool
	RunInterval time.Duration
	RunOnStart  bool
	BatchSize   int
	JobTimeout  time.Duration
	LockTTL     time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		RunInterval: 24 * time.Hour,
		BatchSize:   50,
		JobTimeout:  10 * time.Minute,
		LockTTL:     15 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:     cfg.Refill.Enabled,
		RunInterval: cfg.Refill.RunInterval,
		RunOnStart:  cfg.Refill.RunOnStart,
		BatchSize:   cfg.Refill.BatchSize,
		JobTimeout:  cfg.Refill.JobTimeout,
		LockTTL:     cfg.Refill.LockTTL,
	}
}
