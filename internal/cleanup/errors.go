package cleanup

import "codeberg.org/mutker/sysoptctl/internal/errors"

const (
	ErrCommandFailed  = errors.ErrorCode("cleanup_command_failed")
	ErrCommandTimeout = errors.ErrorCode("cleanup_command_timeout")
	ErrDNSFlushFailed = errors.ErrorCode("cleanup_dns_flush_failed")
	ErrRecentLocation = errors.ErrorCode("cleanup_recent_location_failed")
)
