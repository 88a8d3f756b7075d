package scheduler

import (
	"time"
)

// Config bounds how long each job may run. Intervals live in the payout config.
type Config struct {
	SettlementTimeout  time.Duration
	ReportTimeout      time.Duration
	MaintenanceTimeout time.Duration
	LeaseTTL           time.Duration
}

func DefaultConfig() Config {
	return Config{
		SettlementTimeout:  5 * time.Minute,
		ReportTimeout:      time.Minute,
		MaintenanceTimeout: 2 * time.Minute,
		LeaseTTL:           5 * time.Minute,
	}
}

func ProvideConfig() Config {
	return DefaultConfig()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.SettlementTimeout <= 0 {
		c.SettlementTimeout = defaults.SettlementTimeout
	}
	if c.ReportTimeout <= 0 {
		c.ReportTimeout = defaults.ReportTimeout
	}
	if c.MaintenanceTimeout <= 0 {
		c.MaintenanceTimeout = defaults.MaintenanceTimeout
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaults.LeaseTTL
	}
	return c
}
