package registry

import "codeberg.org/mutker/sysoptctl/internal/errors"

const (
	// Store Errors
	ErrKeyNotFound   = errors.ErrorCode("registry_key_not_found")
	ErrValueNotFound = errors.ErrorCode("registry_value_not_found")
	ErrAccessDenied  = errors.ErrorCode("registry_access_denied")
	ErrStoreFailed   = errors.ErrorCode("registry_store_failed")
	ErrInvalidPath   = errors.ErrorCode("registry_invalid_path")

	// Scan Errors
	ErrScanStepFailed = errors.ErrorCode("registry_scan_step_failed")

	// Backup Errors
	ErrBackupFailed  = errors.ErrorCode("registry_backup_failed")
	ErrRestoreFailed = errors.ErrorCode("registry_restore_failed")
)
