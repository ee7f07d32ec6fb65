package workerpool

import "time"

type Config struct {
	BasePort            int
	MaxProcesses        int
	IdleTimeout         time.Duration
	SweepInterval       time.Duration
	StartupTimeout      time.Duration
	StartupPollInterval time.Duration
	HealthTimeout       time.Duration
	StopGracePeriod     time.Duration
}

func DefaultConfig() Config {
	return Config{
		BasePort:            8100,
		MaxProcesses:        50,
		IdleTimeout:         5 * time.Minute,
		SweepInterval:       time.Minute,
		StartupTimeout:      30 * time.Second,
		StartupPollInterval: time.Second,
		HealthTimeout:       5 * time.Second,
		StopGracePeriod:     5 * time.Second,
	}
}

// withDefaults fills every zero field from DefaultConfig.
func (c Config) withDefaults() Config {
	defaults := DefaultConfig()

	if c.BasePort <= 0 {
		c.BasePort = defaults.BasePort
	}

	if c.MaxProcesses <= 0 {
		c.MaxProcesses = defaults.MaxProcesses
	}

	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaults.IdleTimeout
	}

	if c.SweepInterval <= 0 {
		c.SweepInterval = defaults.SweepInterval
	}

	if c.StartupTimeout <= 0 {
		c.StartupTimeout = defaults.StartupTimeout
	}

	if c.StartupPollInterval <= 0 {
		c.StartupPollInterval = defaults.StartupPollInterval
	}

	if c.HealthTimeout <= 0 {
		c.HealthTimeout = defaults.HealthTimeout
	}

	if c.StopGracePeriod <= 0 {
		c.StopGracePeriod = defaults.StopGracePeriod
	}

	return c
}
