//go:build !windows

package process

import "codeberg.org/mutker/sysoptctl/internal/errors"

type unsupportedSource struct{}

// NewSystemSource returns a Source that always fails; processes are only
// managed on Windows.
func NewSystemSource() Source {
	return unsupportedSource{}
}

func (unsupportedSource) Snapshot() ([]Info, error) {
	return nil, errors.New().New(errors.ErrNotSupported)
}

func (unsupportedSource) Kill(uint32) error {
	return errors.New().New(errors.ErrNotSupported)
}
