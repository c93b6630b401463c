package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/sysoptctl/internal/config"
	"codeberg.org/mutker/sysoptctl/internal/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
auto_purge_enabled = true
standby_threshold_mb = 2048
free_memory_threshold_mb = 512
polling_rate_ms = 250
create_registry_backup = false
log_level = "debug"
backup_dir = "/tmp/backups"

[history]
enabled = true
db_path = "/path/to/history.db"

[last_run]
dns_flush = "2024-05-01T10:00:00Z"
`)

	store, err := config.Load(config.WithConfigFile(path))
	require.NoError(t, err)
	cfg := store.Config()

	assert.True(t, cfg.AutoPurgeEnabled, "Expected AutoPurgeEnabled true")
	assert.Equal(t, 2048, cfg.StandbyThresholdMB, "Expected StandbyThresholdMB 2048")
	assert.Equal(t, 512, cfg.FreeMemoryThresholdMB, "Expected FreeMemoryThresholdMB 512")
	assert.Equal(t, 250, cfg.PollingRateMs, "Expected PollingRateMs 250")
	assert.False(t, cfg.CreateRegistryBackup, "Expected CreateRegistryBackup false")
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel debug")
	assert.Equal(t, "/tmp/backups", cfg.BackupDir)
	assert.Equal(t, "/path/to/history.db", cfg.History.DBPath)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), store.LastRun(config.OpDNSFlush).UTC())
	assert.True(t, store.LastRun(config.OpRegistryClean).IsZero())
}

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")

	store, err := config.Load(config.WithConfigFile(path))
	require.NoError(t, err, "Failed to load config")
	cfg := store.Config()

	assert.False(t, cfg.AutoPurgeEnabled)
	assert.Equal(t, config.DefaultStandbyThresholdMB, cfg.StandbyThresholdMB)
	assert.Equal(t, config.DefaultFreeMemoryThresholdMB, cfg.FreeMemoryThresholdMB)
	assert.Equal(t, config.DefaultPollingRateMs, cfg.PollingRateMs)
	assert.True(t, cfg.CreateRegistryBackup)
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "RegistryBackups"), cfg.BackupDir)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "history.db"), cfg.History.DBPath)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "Load must not create the file")
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	path := writeConfig(t, `
This is not a valid TOML file
`)

	_, err := config.Load(config.WithConfigFile(path))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
}

func TestInvalidLogLevel(t *testing.T) {
	path := writeConfig(t, `
log_level = "invalid"
`)

	_, err := config.Load(config.WithConfigFile(path))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
}

func TestInvalidPollingRate(t *testing.T) {
	path := writeConfig(t, `
polling_rate_ms = 10
`)

	_, err := config.Load(config.WithConfigFile(path))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidInterval))
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `
standby_threshold_mb = 2048
`)
	t.Setenv("SYSOPTCTL_STANDBY_THRESHOLD_MB", "4096")

	store, err := config.Load(config.WithConfigFile(path))
	require.NoError(t, err)
	assert.Equal(t, 4096, store.Config().StandbyThresholdMB)
}

func TestConfigPathFromEnvironment(t *testing.T) {
	path := writeConfig(t, `
polling_rate_ms = 500
`)
	t.Setenv("SYSOPTCTL_CONFIG", path)

	store, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, path, store.Path())
	assert.Equal(t, 500, store.Config().PollingRateMs)
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
auto_purge_enabled = false
log_level = "error"
`)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--log-level", "debug", "--auto-purge", "--config", path}))

	store, err := config.Load(config.WithFlags(fs))
	require.NoError(t, err)

	cfg := store.Config()
	assert.Equal(t, path, store.Path())
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel to be set by flag")
	assert.True(t, cfg.AutoPurgeEnabled)
	assert.Equal(t, config.DefaultPollingRateMs, cfg.PollingRateMs, "Unset flags must not override defaults")
}

func TestSettersPersistWholesale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.toml")

	store, err := config.Load(config.WithConfigFile(path))
	require.NoError(t, err)

	require.NoError(t, store.SetAutoPurgeEnabled(true))
	require.NoError(t, store.SetStandbyThresholdMB(3072))
	require.NoError(t, store.SetFreeMemoryThresholdMB(768))
	require.NoError(t, store.SetPollingRateMs(2000))
	require.NoError(t, store.SetCreateRegistryBackup(false))
	ranAt := time.Date(2024, 6, 2, 8, 30, 15, 0, time.UTC)
	require.NoError(t, store.MarkRun(config.OpRecentFilesClear, ranAt))

	reloaded, err := config.Load(config.WithConfigFile(path))
	require.NoError(t, err)
	cfg := reloaded.Config()

	assert.True(t, cfg.AutoPurgeEnabled)
	assert.Equal(t, 3072, cfg.StandbyThresholdMB)
	assert.Equal(t, 768, cfg.FreeMemoryThresholdMB)
	assert.Equal(t, 2000, cfg.PollingRateMs)
	assert.False(t, cfg.CreateRegistryBackup)
	assert.Equal(t, ranAt, reloaded.LastRun(config.OpRecentFilesClear).UTC())
	assert.True(t, reloaded.LastRun(config.OpMemoryClean).IsZero())
}

func TestSetterRejectsInvalidValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")

	store, err := config.Load(config.WithConfigFile(path))
	require.NoError(t, err)

	err = store.SetStandbyThresholdMB(0)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidThreshold))
	assert.Equal(t, config.DefaultStandbyThresholdMB, store.Config().StandbyThresholdMB)

	err = store.SetPollingRateMs(5)
	require.Error(t, err)
	assert.Equal(t, config.DefaultPollingRateMs, store.Config().PollingRateMs)

	err = store.MarkRun(config.Operation(42), time.Now())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "Rejected updates must not write the file")
}

func TestAutoPurgePolicy(t *testing.T) {
	cfg := config.Config{
		AutoPurgeEnabled:      true,
		StandbyThresholdMB:    1024,
		FreeMemoryThresholdMB: 1024,
		PollingRateMs:         1500,
	}

	policy := cfg.AutoPurgePolicy()
	assert.Equal(t, uint64(1073741824), policy.StandbyThresholdBytes)
	assert.Equal(t, uint64(1073741824), policy.FreeThresholdBytes)
	assert.Equal(t, 1500*time.Millisecond, policy.PollInterval)
}

func TestShouldPurge(t *testing.T) {
	policy := config.Config{
		AutoPurgeEnabled:      true,
		StandbyThresholdMB:    1024,
		FreeMemoryThresholdMB: 1024,
	}.AutoPurgePolicy()

	tests := []struct {
		name      string
		enabled   bool
		standby   uint64
		available uint64
		want      bool
	}{
		{"both thresholds crossed", true, 2_000_000_000, 500_000_000, true},
		{"available above threshold", true, 2_000_000_000, 2_000_000_000, false},
		{"standby below threshold", true, 500_000_000, 500_000_000, false},
		{"exactly at thresholds", true, 1073741824, 1073741824, true},
		{"disabled", false, 2_000_000_000, 500_000_000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := policy
			p.Enabled = tt.enabled
			assert.Equal(t, tt.want, p.ShouldPurge(tt.standby, tt.available))
		})
	}
}

func TestWatchReloadsPolicy(t *testing.T) {
	path := writeConfig(t, `
auto_purge_enabled = false
`)

	store, err := config.Load(config.WithConfigFile(path))
	require.NoError(t, err)

	changed := make(chan config.Config, 4)
	require.NoError(t, store.Watch(t.Context(), func(c config.Config) { changed <- c }))

	require.NoError(t, os.WriteFile(path, []byte("auto_purge_enabled = true\n"), 0o600))

	// A write may surface as several events, the first one possibly seeing
	// a truncated file; wait for the settled content.
	timeout := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changed:
			if !cfg.AutoPurgeEnabled {
				continue
			}
			assert.True(t, store.AutoPurgePolicy().Enabled)
			return
		case <-timeout:
			t.Fatal("configuration change was not picked up")
		}
	}
}

func TestReloadKeepsSetterValueOverFlag(t *testing.T) {
	path := writeConfig(t, `
auto_purge_enabled = false
`)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--auto-purge", "--config", path}))

	store, err := config.Load(config.WithFlags(fs))
	require.NoError(t, err)
	require.True(t, store.AutoPurgePolicy().Enabled)

	changed := make(chan config.Config, 8)
	require.NoError(t, store.Watch(t.Context(), func(c config.Config) { changed <- c }))

	require.NoError(t, store.SetAutoPurgeEnabled(false))
	assert.False(t, store.AutoPurgePolicy().Enabled)

	// Force a reload that differs from the setter's write.
	require.NoError(t, os.WriteFile(path, []byte("auto_purge_enabled = false\npolling_rate_ms = 750\n"), 0o600))

	timeout := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changed:
			if cfg.PollingRateMs != 750 {
				continue
			}
			assert.False(t, cfg.AutoPurgeEnabled, "flag value must not return on reload")
			assert.False(t, store.AutoPurgePolicy().Enabled)
			return
		case <-timeout:
			t.Fatal("configuration change was not picked up")
		}
	}
}

func TestReloadIgnoresEnvironmentOverride(t *testing.T) {
	path := writeConfig(t, `
polling_rate_ms = 1000
`)
	t.Setenv("SYSOPTCTL_POLLING_RATE_MS", "300")

	store, err := config.Load(config.WithConfigFile(path))
	require.NoError(t, err)
	require.Equal(t, 300, store.Config().PollingRateMs)

	changed := make(chan config.Config, 8)
	require.NoError(t, store.Watch(t.Context(), func(c config.Config) { changed <- c }))

	require.NoError(t, store.SetPollingRateMs(600))
	require.NoError(t, os.WriteFile(path, []byte("polling_rate_ms = 600\nstandby_threshold_mb = 4096\n"), 0o600))

	timeout := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changed:
			if cfg.StandbyThresholdMB != 4096 {
				continue
			}
			assert.Equal(t, 600, cfg.PollingRateMs)
			return
		case <-timeout:
			t.Fatal("configuration change was not picked up")
		}
	}
}
