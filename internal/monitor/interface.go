package monitor

import (
	"time"

	"codeberg.org/mutker/sysoptctl/internal/config"
	"codeberg.org/mutker/sysoptctl/internal/memory"
)

// PolicySource supplies the auto-purge policy. It is read on every tick so
// that live configuration changes apply on the next iteration.
type PolicySource interface {
	AutoPurgePolicy() config.AutoPurgePolicy
}

// PurgeOutcome describes one standby list purge.
type PurgeOutcome struct {
	Success             bool
	BytesFreed          uint64
	PreviousStandbySize uint64
	NewStandbySize      uint64
	Timestamp           time.Time
}

// Event is published to subscribers. Exactly one of Snapshot, Outcome and Err
// is set.
type Event struct {
	Time     time.Time
	Snapshot *memory.Snapshot
	Outcome  *PurgeOutcome
	Err      error
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithSettleDelay overrides the wait between a purge and the follow-up sample.
func WithSettleDelay(d time.Duration) Option {
	return func(m *Monitor) {
		m.settleDelay = d
	}
}

// WithErrorBackoff overrides the pause after a failed tick.
func WithErrorBackoff(d time.Duration) Option {
	return func(m *Monitor) {
		m.errorBackoff = d
	}
}

// WithClock sets the time source used for event and outcome timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}
