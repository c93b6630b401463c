//go:build !windows

package memory

import (
	"codeberg.org/mutker/sysoptctl/internal/errors"
	"codeberg.org/mutker/sysoptctl/internal/logger"
)

type unsupportedProbe struct{}

// NewProbe returns a Probe that always fails; memory counters are only
// read on Windows.
func NewProbe() Probe {
	return unsupportedProbe{}
}

func (unsupportedProbe) Sample() (Snapshot, error) {
	return Snapshot{}, errors.New().Wrap(ErrProbeFailed, errors.New().New(errors.ErrNotSupported))
}

type unsupportedReclaimer struct {
	log logger.Logger
}

func NewReclaimer(log logger.Logger) Reclaimer {
	if log == nil {
		log = logger.Nop()
	}

	return unsupportedReclaimer{log: log.With("reclaimer")}
}

func (r unsupportedReclaimer) PurgeStandbyList() bool {
	r.log.Debug().Msg("Standby list purge is only supported on Windows")
	return false
}

func (r unsupportedReclaimer) EmptyWorkingSets() bool {
	r.log.Debug().Msg("Working set trimming is only supported on Windows")
	return false
}
