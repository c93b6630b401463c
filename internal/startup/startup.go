// Package startup registers the executable under the current user's Run key
// so that it starts at logon.
package startup

import (
	"os"

	"codeberg.org/mutker/sysoptctl/internal/errors"
	"codeberg.org/mutker/sysoptctl/internal/logger"
	"codeberg.org/mutker/sysoptctl/internal/registry"
)

const (
	RunKeyPath = `Software\Microsoft\Windows\CurrentVersion\Run`
	ValueName  = "sysoptctl"
)

type Manager struct {
	store      registry.Store
	executable func() (string, error)
	log        logger.Logger
}

// New returns a Manager writing to store. executable defaults to
// os.Executable.
func New(store registry.Store, executable func() (string, error), log logger.Logger) *Manager {
	if executable == nil {
		executable = os.Executable
	}
	if log == nil {
		log = logger.Nop()
	} else {
		log = log.With("startup")
	}

	return &Manager{store: store, executable: executable, log: log}
}

// Enabled reports whether the Run value exists. Read errors count as
// disabled.
func (m *Manager) Enabled() bool {
	key, err := m.store.OpenKey(registry.CurrentUser, RunKeyPath, false)
	if err != nil {
		return false
	}
	defer key.Close()

	_, err = key.StringValue(ValueName)

	return err == nil
}

// Enable writes the quoted executable path to the Run value.
func (m *Manager) Enable() error {
	errFactory := errors.New()

	exe, err := m.executable()
	if err != nil {
		return errFactory.Wrap(ErrExecutablePath, err)
	}
	if exe == "" {
		return errFactory.New(ErrExecutablePath)
	}

	key, err := m.store.CreateKey(registry.CurrentUser, RunKeyPath)
	if err != nil {
		return errFactory.Wrap(ErrEnableFailed, err)
	}
	defer key.Close()

	if err := key.SetStringValue(ValueName, `"`+exe+`"`); err != nil {
		return errFactory.Wrap(ErrEnableFailed, err)
	}

	m.log.Info().Str("path", exe).Msg("Start at logon enabled")

	return nil
}

// Disable removes the Run value. A missing key or value is not an error.
func (m *Manager) Disable() error {
	errFactory := errors.New()

	key, err := m.store.OpenKey(registry.CurrentUser, RunKeyPath, true)
	if errors.HasCode(err, registry.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return errFactory.Wrap(ErrDisableFailed, err)
	}
	defer key.Close()

	if err := key.DeleteValue(ValueName); err != nil && !errors.HasCode(err, registry.ErrValueNotFound) {
		return errFactory.Wrap(ErrDisableFailed, err)
	}

	m.log.Info().Msg("Start at logon disabled")

	return nil
}

func (m *Manager) Set(enabled bool) error {
	if enabled {
		return m.Enable()
	}
	return m.Disable()
}
