package scheduler

import (
	"time"

	"github.com/smallbiznis/quicksearch/internal/config"
)

// Config controls when the catalog normalizer runs in the background.
// A zero RunInterval disables the periodic loop.
type Config struct {
	RunOnStartup bool
	RunInterval  time.Duration
	JobTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunOnStartup: true,
		JobTimeout:   10 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	c := DefaultConfig()
	c.RunOnStartup = cfg.NormalizeOnStartup
	c.RunInterval = cfg.NormalizeInterval
	return c
}

func (c Config) withDefaults() Config {
	if c.JobTimeout <= 0 {
		c.JobTimeout = DefaultConfig().JobTimeout
	}
	if c.RunInterval < 0 {
		c.RunInterval = 0
	}
	return c
}
