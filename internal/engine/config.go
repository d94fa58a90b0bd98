package engine

import (
	"time"

	"github.com/smallbiznis/recouply/internal/config"
)

// Config controls the run loop and per-phase timeouts.
type Config struct {
	RunInterval  time.Duration
	PhaseTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:  24 * time.Hour,
		PhaseTimeout: 10 * time.Minute,
	}
}

// ProvideConfig derives the engine config from the collections settings.
func ProvideConfig(holder *config.CollectionsConfigHolder) Config {
	cfg := holder.Get()
	return Config{
		RunInterval:  cfg.RunInterval,
		PhaseTimeout: cfg.PhaseTimeout,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.PhaseTimeout <= 0 {
		c.PhaseTimeout = defaults.PhaseTimeout
	}
	return c
}
