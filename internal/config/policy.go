package config

import "time"

const bytesPerMB = 1024 * 1024

// AutoPurgePolicy is the threshold policy evaluated by the memory monitor on
// every tick.
type AutoPurgePolicy struct {
	Enabled               bool
	StandbyThresholdBytes uint64
	FreeThresholdBytes    uint64
	PollInterval          time.Duration
}

// AutoPurgePolicy converts the MB/ms settings into a policy.
func (c Config) AutoPurgePolicy() AutoPurgePolicy {
	return AutoPurgePolicy{
		Enabled:               c.AutoPurgeEnabled,
		StandbyThresholdBytes: mbToBytes(c.StandbyThresholdMB),
		FreeThresholdBytes:    mbToBytes(c.FreeMemoryThresholdMB),
		PollInterval:          time.Duration(c.PollingRateMs) * time.Millisecond,
	}
}

// ShouldPurge reports whether the standby list is large enough and available
// memory low enough to warrant a purge.
func (p AutoPurgePolicy) ShouldPurge(standbyBytes, availableBytes uint64) bool {
	return p.Enabled &&
		standbyBytes >= p.StandbyThresholdBytes &&
		availableBytes <= p.FreeThresholdBytes
}

func mbToBytes(mb int) uint64 {
	if mb <= 0 {
		return 0
	}
	return uint64(mb) * bytesPerMB
}
