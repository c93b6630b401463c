package monitor

import "codeberg.org/mutker/sysoptctl/internal/errors"

const (
	ErrSampleFailed = errors.ErrorCode("monitor_sample_failed")
	ErrPurgeSample  = errors.ErrorCode("monitor_purge_sample_failed")
	ErrTickPanic    = errors.ErrorCode("monitor_tick_panic")
)
