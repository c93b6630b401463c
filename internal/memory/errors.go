package memory

import "codeberg.org/mutker/sysoptctl/internal/errors"

const (
	// Probe Errors
	ErrProbeFailed     = errors.ErrorCode("memory_probe_failed")
	ErrMemoryStatus    = errors.ErrorCode("memory_status_failed")
	ErrPerformanceInfo = errors.ErrorCode("memory_performance_info_failed")

	// Reclaim Errors
	ErrPrivilegeFailed = errors.ErrorCode("memory_privilege_failed")
	ErrReclaimFailed   = errors.ErrorCode("memory_reclaim_failed")
)
