package process

import "codeberg.org/mutker/sysoptctl/internal/errors"

const (
	ErrListFailed       = errors.ErrorCode("process_list_failed")
	ErrNotFound         = errors.ErrorCode("process_not_found")
	ErrProtectedProcess = errors.ErrorCode("process_protected")
	ErrTerminateFailed  = errors.ErrorCode("process_terminate_failed")
)
