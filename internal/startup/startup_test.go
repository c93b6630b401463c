package startup

import (
	"testing"

	"codeberg.org/mutker/sysoptctl/internal/errors"
	"codeberg.org/mutker/sysoptctl/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exePath = `C:\Program Files\sysoptctl\sysoptctl.exe`

func newManager(store registry.Store) *Manager {
	return New(store, func() (string, error) { return exePath, nil }, nil)
}

func TestEnableWritesQuotedPath(t *testing.T) {
	store := registry.NewMemoryStore()
	m := newManager(store)

	assert.False(t, m.Enabled())
	require.NoError(t, m.Enable())
	assert.True(t, m.Enabled())

	value, ok := store.Value(registry.CurrentUser, RunKeyPath, ValueName)
	require.True(t, ok)
	assert.Equal(t, `"`+exePath+`"`, value)
}

func TestDisable(t *testing.T) {
	store := registry.NewMemoryStore()
	store.SetValue(registry.CurrentUser, RunKeyPath, "Other", "other.exe")
	store.SetValue(registry.CurrentUser, RunKeyPath, ValueName, `"old.exe"`)
	m := newManager(store)

	require.NoError(t, m.Disable())
	assert.False(t, m.Enabled())
	assert.Equal(t, []string{"Other"}, store.Values(registry.CurrentUser, RunKeyPath))

	// already disabled
	require.NoError(t, m.Disable())
}

func TestDisableWithoutRunKey(t *testing.T) {
	m := newManager(registry.NewMemoryStore())

	assert.NoError(t, m.Disable())
}

func TestSet(t *testing.T) {
	m := newManager(registry.NewMemoryStore())

	require.NoError(t, m.Set(true))
	assert.True(t, m.Enabled())
	require.NoError(t, m.Set(false))
	assert.False(t, m.Enabled())
}

func TestEnableAccessDenied(t *testing.T) {
	store := registry.NewMemoryStore()
	store.Deny(registry.CurrentUser, RunKeyPath)
	m := newManager(store)

	err := m.Enable()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrEnableFailed))
	assert.True(t, errors.HasCode(err, registry.ErrAccessDenied))
	assert.False(t, m.Enabled())
}

func TestEnableWithoutExecutable(t *testing.T) {
	m := New(registry.NewMemoryStore(), func() (string, error) { return "", nil }, nil)

	err := m.Enable()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrExecutablePath))
}
