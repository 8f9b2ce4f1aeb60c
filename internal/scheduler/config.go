package scheduler

import (
	"time"

	"github.com/smallbiznis/matchhub/internal/config"
)

const (
	JobExpireCampaigns    = "expire_campaigns"
	JobLapseConfirmations = "lapse_confirmations"
)

// Config controls the tick interval and per-job limits.
type Config struct {
	Enabled     bool
	RunInterval time.Duration
	JobTimeout  time.Duration
	// LockTTL bounds how long one instance may hold a job's redis lock.
	LockTTL time.Duration
	// EnabledJobs restricts the run to the named jobs; empty runs all.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		RunInterval: time.Hour,
		JobTimeout:  2 * time.Minute,
		LockTTL:     5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.LockTTL < c.JobTimeout {
		c.LockTTL = c.JobTimeout
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:     cfg.Scheduler.Enabled,
		RunInterval: cfg.Scheduler.Interval,
		JobTimeout:  cfg.Scheduler.JobTimeout,
	}.withDefaults()
}
