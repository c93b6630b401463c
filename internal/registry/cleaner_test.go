package registry_test

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/sysoptctl/internal/cleanup"
	"codeberg.org/mutker/sysoptctl/internal/errors"
	"codeberg.org/mutker/sysoptctl/internal/registry"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls [][]string
	code  int
	err   error
	// onRun lets a test emulate the side effects of reg.exe.
	onRun func(args []string)
}

func (r *fakeRunner) Run(_ context.Context, name string, args ...string) (int, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	if r.onRun != nil {
		r.onRun(args)
	}
	return r.code, r.err
}

func (r *fakeRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	_, err := r.Run(ctx, name, args...)
	return nil, err
}

func mruIssue(selected bool) registry.Issue {
	return registry.Issue{
		Category: registry.MruList,
		KeyPath:  `HKEY_CURRENT_USER\` + openSaveMRU,
		Severity: registry.Low,
		Selected: selected,
	}
}

func TestCleanSkipsUnselectedMRU(t *testing.T) {
	store, fs := fixture(t)
	store.Deny(registry.CurrentUser, openSaveMRU)

	cleaner := registry.NewCleaner(store, fs, &fakeRunner{}, "/backups", nil)
	result := cleaner.Clean(context.Background(), []registry.Issue{mruIssue(false)})

	assert.False(t, result.Success)
	assert.Zero(t, result.ItemsProcessed)
	assert.Zero(t, result.ItemsFailed, "an unselected issue must not touch its key")
	assert.Equal(t, "Cleaned 0 registry issues", result.Message)
	assert.Equal(t, cleanup.OperationRegistryClean, result.Operation)
}

func TestCleanSelectedMRUKeepsOrderIndex(t *testing.T) {
	store, fs := fixture(t)

	cleaner := registry.NewCleaner(store, fs, &fakeRunner{}, "/backups", nil)
	result := cleaner.Clean(context.Background(), []registry.Issue{mruIssue(true)})

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.ItemsProcessed)
	assert.Equal(t, "Cleaned 1 registry issues", result.Message)
	assert.Equal(t, []string{"MRUListEx"}, store.Values(registry.CurrentUser, openSaveMRU))
}

func TestCleanCountsOtherIssuesWithoutMutation(t *testing.T) {
	store, fs := fixture(t)
	scanner := registry.NewScanner(store, fs, nil)
	issues := scanner.Scan(context.Background(), nil)
	require.Len(t, issues, 5)

	// Leave the MRU issue out so only count-only categories remain.
	issues = issues[:4]

	cleaner := registry.NewCleaner(store, fs, &fakeRunner{}, "/backups", nil)
	result := cleaner.Clean(context.Background(), issues)

	assert.True(t, result.Success)
	assert.Equal(t, 4, result.ItemsProcessed)

	_, ok := store.Value(registry.LocalMachine, sharedDLLs, `C:\Program Files\Old\legacy.dll`)
	assert.True(t, ok, "shared DLL value stays in place")
	_, ok = store.Value(registry.LocalMachine, run, "Stale")
	assert.True(t, ok, "startup value stays in place")
}

func TestCleanCountsFailuresAndContinues(t *testing.T) {
	store, fs := fixture(t)
	store.SetValue(registry.CurrentUser, runMRU, "a", "cmd")
	store.Deny(registry.CurrentUser, openSaveMRU)

	issues := []registry.Issue{
		mruIssue(true),
		{Category: registry.MruList, KeyPath: `HKEY_CURRENT_USER\` + runMRU, Selected: true},
		{Category: registry.MruList, KeyPath: `HKEY_CURRENT_USER\Software\Vanished`, Selected: true},
		{Category: registry.MruList, KeyPath: `HKEY_USERS\Nope`, Selected: true},
	}

	cleaner := registry.NewCleaner(store, fs, &fakeRunner{}, "/backups", nil)
	result := cleaner.Clean(context.Background(), issues)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.ItemsProcessed)
	assert.Equal(t, 2, result.ItemsFailed, "denied key and unparseable path fail, a vanished key is skipped")
	assert.Empty(t, store.Values(registry.CurrentUser, runMRU))
}

func TestCreateBackup(t *testing.T) {
	fs := afero.NewMemMapFs()
	runner := &fakeRunner{}
	runner.onRun = func(args []string) {
		require.NoError(t, afero.WriteFile(fs, args[2], []byte("Windows Registry Editor Version 5.00"), 0o644))
	}

	cleaner := registry.NewCleaner(registry.NewMemoryStore(), fs, runner, "/backups", nil)
	cleaner.SetClock(func() time.Time { return time.Date(2024, 7, 9, 14, 3, 5, 0, time.Local) })

	path, err := cleaner.CreateBackup(context.Background())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/backups", "backup_20240709_140305.reg"), path)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"reg", "export", `HKCU\Software`, path, "/y"}, runner.calls[0])
	assert.True(t, cleaner.VerifyBackup(path))
}

func TestCreateBackupFailures(t *testing.T) {
	t.Run("timeout is best effort", func(t *testing.T) {
		runner := &fakeRunner{code: -1, err: errors.New().Wrap(cleanup.ErrCommandTimeout, context.DeadlineExceeded)}
		cleaner := registry.NewCleaner(registry.NewMemoryStore(), afero.NewMemMapFs(), runner, "/backups", nil)

		path, err := cleaner.CreateBackup(context.Background())
		require.NoError(t, err)
		assert.NotEmpty(t, path)
		assert.False(t, cleaner.VerifyBackup(path), "caller must verify the file")
	})

	t.Run("non-zero exit", func(t *testing.T) {
		cleaner := registry.NewCleaner(registry.NewMemoryStore(), afero.NewMemMapFs(), &fakeRunner{code: 1}, "/backups", nil)

		path, err := cleaner.CreateBackup(context.Background())
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, registry.ErrBackupFailed))
		assert.NotEmpty(t, path)
	})

	t.Run("cannot start", func(t *testing.T) {
		runner := &fakeRunner{code: -1, err: stderrors.New("reg not found")}
		cleaner := registry.NewCleaner(registry.NewMemoryStore(), afero.NewMemMapFs(), runner, "/backups", nil)

		_, err := cleaner.CreateBackup(context.Background())
		assert.True(t, errors.HasCode(err, registry.ErrBackupFailed))
	})
}

func TestRestoreBackup(t *testing.T) {
	tests := []struct {
		name string
		code int
		err  error
		want bool
	}{
		{"exit zero", 0, nil, true},
		{"exit non-zero", 1, nil, false},
		{"timeout", -1, errors.New().Wrap(cleanup.ErrCommandTimeout, context.DeadlineExceeded), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{code: tt.code, err: tt.err}
			cleaner := registry.NewCleaner(registry.NewMemoryStore(), afero.NewMemMapFs(), runner, "/backups", nil)

			assert.Equal(t, tt.want, cleaner.RestoreBackup(context.Background(), "/backups/backup_1.reg"))
			assert.Equal(t, []string{"reg", "import", "/backups/backup_1.reg"}, runner.calls[0])
		})
	}
}

func TestListBackups(t *testing.T) {
	fs := afero.NewMemMapFs()
	cleaner := registry.NewCleaner(registry.NewMemoryStore(), fs, &fakeRunner{}, "/backups", nil)

	backups, err := cleaner.ListBackups()
	require.NoError(t, err)
	assert.Empty(t, backups, "missing directory is not an error")

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"backup_a.reg", "backup_b.reg", "notes.txt", "backup_c.REG"} {
		path := filepath.Join("/backups", name)
		require.NoError(t, afero.WriteFile(fs, path, []byte("x"), 0o644))
		mod := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, fs.Chtimes(path, mod, mod))
	}

	backups, err = cleaner.ListBackups()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("/backups", "backup_c.REG"),
		filepath.Join("/backups", "backup_b.reg"),
		filepath.Join("/backups", "backup_a.reg"),
	}, backups)
}
