//go:build windows

package memory

import (
	"unsafe"

	"codeberg.org/mutker/sysoptctl/internal/errors"
	"codeberg.org/mutker/sysoptctl/internal/logger"
	"golang.org/x/sys/windows"
)

type systemReclaimer struct {
	log logger.Logger
}

// NewReclaimer returns a Reclaimer issuing SystemMemoryListInformation
// commands through NtSetSystemInformation.
func NewReclaimer(log logger.Logger) Reclaimer {
	if log == nil {
		log = logger.Nop()
	}

	return &systemReclaimer{log: log.With("reclaimer")}
}

func (r *systemReclaimer) PurgeStandbyList() bool {
	return r.command("purge standby list", memoryPurgeStandbyList)
}

func (r *systemReclaimer) EmptyWorkingSets() bool {
	return r.command("empty working sets", memoryEmptyWorkingSets)
}

func (r *systemReclaimer) command(name string, cmd int32) bool {
	restore, err := enablePrivilege(profileSingleProcessPrivilege)
	if err != nil {
		r.log.Warn().Err(err).Str("command", name).Msg("Failed to acquire privilege")
		return false
	}
	defer restore()

	status, _, _ := procNtSetSystemInformation.Call(
		uintptr(systemMemoryListInformation),
		uintptr(unsafe.Pointer(&cmd)),
		unsafe.Sizeof(cmd),
	)
	if status != 0 {
		r.log.Warn().
			Str("command", name).
			Str("status", windows.NTStatus(uint32(status)).Error()).
			Msg("Memory list command rejected")
		return false
	}

	r.log.Debug().Str("command", name).Msg("Memory list command completed")
	return true
}

// enablePrivilege enables the named privilege on the process token and
// returns a function restoring the previous state.
func enablePrivilege(name string) (func(), error) {
	errFactory := errors.New()

	var token windows.Token
	if err := windows.OpenProcessToken(
		windows.CurrentProcess(),
		windows.TOKEN_ADJUST_PRIVILEGES|windows.TOKEN_QUERY,
		&token,
	); err != nil {
		return nil, errFactory.Wrap(ErrPrivilegeFailed, err)
	}

	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		token.Close()
		return nil, errFactory.Wrap(ErrPrivilegeFailed, err)
	}

	var luid windows.LUID
	if err := windows.LookupPrivilegeValue(nil, namePtr, &luid); err != nil {
		token.Close()
		return nil, errFactory.Wrap(ErrPrivilegeFailed, err)
	}

	privileges := windows.Tokenprivileges{PrivilegeCount: 1}
	privileges.Privileges[0] = windows.LUIDAndAttributes{
		Luid:       luid,
		Attributes: windows.SE_PRIVILEGE_ENABLED,
	}

	var previous windows.Tokenprivileges
	var returned uint32
	if err := windows.AdjustTokenPrivileges(
		token,
		false,
		&privileges,
		uint32(unsafe.Sizeof(previous)),
		&previous,
		&returned,
	); err != nil {
		token.Close()
		return nil, errFactory.Wrap(ErrPrivilegeFailed, err)
	}

	return func() {
		_ = windows.AdjustTokenPrivileges(token, false, &previous, 0, nil, nil)
		token.Close()
	}, nil
}
