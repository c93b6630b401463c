package startup

import "codeberg.org/mutker/sysoptctl/internal/errors"

const (
	ErrExecutablePath = errors.ErrorCode("startup_executable_path_failed")
	ErrEnableFailed   = errors.ErrorCode("startup_enable_failed")
	ErrDisableFailed  = errors.ErrorCode("startup_disable_failed")
)
