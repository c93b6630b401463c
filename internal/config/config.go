package config

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/sysoptctl/internal/errors"
	"codeberg.org/mutker/sysoptctl/internal/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultStandbyThresholdMB    = 1024
	DefaultFreeMemoryThresholdMB = 1024
	DefaultPollingRateMs         = 1000
	MinPollingRateMs             = 100
	DefaultLogLevel              = "info"
	DefaultHistoryBatchSize      = 1
	DefaultHistoryBatchTimeout   = 5

	defaultEnvPrefix = "SYSOPTCTL"
	appDirName       = "sysoptctl"
	configFileName   = "settings.toml"
	backupDirName    = "RegistryBackups"
	historyFileName  = "history.db"

	defaultDirPerm  = 0o755
	defaultFilePerm = 0o600
)

type Config struct {
	AutoPurgeEnabled      bool          `mapstructure:"auto_purge_enabled"`
	StandbyThresholdMB    int           `mapstructure:"standby_threshold_mb"`
	FreeMemoryThresholdMB int           `mapstructure:"free_memory_threshold_mb"`
	PollingRateMs         int           `mapstructure:"polling_rate_ms"`
	StartWithWindows      bool          `mapstructure:"start_with_windows"`
	CreateRegistryBackup  bool          `mapstructure:"create_registry_backup"`
	LogLevel              string        `mapstructure:"log_level"`
	BackupDir             string        `mapstructure:"backup_dir"`
	History               HistoryConfig `mapstructure:"history"`
	LastRun               LastRun       `mapstructure:"last_run"`

	// Command line only, never persisted
	Debug   bool `mapstructure:"debug"`
	Verbose bool `mapstructure:"verbose"`
}

type HistoryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DBPath       string `mapstructure:"db_path"`
	BatchSize    int    `mapstructure:"batch_size"`
	BatchTimeout int    `mapstructure:"batch_timeout"`
}

// LastRun holds the completion time of the most recent run of each
// cleanup operation. Zero means never.
type LastRun struct {
	MemoryClean      time.Time `mapstructure:"memory_clean"`
	DNSFlush         time.Time `mapstructure:"dns_flush"`
	RecentFilesClear time.Time `mapstructure:"recent_files_clear"`
	RegistryClean    time.Time `mapstructure:"registry_clean"`
}

// Operation identifies a cleanup operation with a last-run timestamp.
type Operation int

const (
	OpMemoryClean Operation = iota
	OpDNSFlush
	OpRecentFilesClear
	OpRegistryClean
)

func (o Operation) String() string {
	switch o {
	case OpMemoryClean:
		return "memory_clean"
	case OpDNSFlush:
		return "dns_flush"
	case OpRecentFilesClear:
		return "recent_files_clear"
	case OpRegistryClean:
		return "registry_clean"
	default:
		return "unknown"
	}
}

// Store owns the configuration and its file. Every mutation goes through a
// named setter and rewrites the file wholesale.
type Store struct {
	mu   sync.RWMutex
	cfg  Config
	path string
	v    *viper.Viper
	log  logger.Logger
}

var (
	_ Provider = (*Store)(nil)
	_ Watcher  = (*Store)(nil)
)

// DefaultDir returns the per-user directory holding settings, history and backups.
func DefaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, appDirName)
}

// RegisterFlags defines the command line flags understood by Load.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to the settings file")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
	fs.Bool("auto-purge", false, "Purge the standby list automatically when thresholds are crossed")
	fs.Int("standby-threshold", DefaultStandbyThresholdMB, "Standby list size in MB at or above which a purge may run")
	fs.Int("free-threshold", DefaultFreeMemoryThresholdMB, "Available memory in MB at or below which a purge may run")
	fs.Int("polling-rate", DefaultPollingRateMs, "Milliseconds between memory samples")
}

var flagKeys = map[string]string{
	"log-level":         "log_level",
	"debug":             "debug",
	"verbose":           "verbose",
	"auto-purge":        "auto_purge_enabled",
	"standby-threshold": "standby_threshold_mb",
	"free-threshold":    "free_memory_threshold_mb",
	"polling-rate":      "polling_rate_ms",
}

// Load reads the configuration from defaults, the settings file, the
// environment and flags, in increasing order of precedence. A missing
// settings file is not an error.
func Load(opts ...Option) (*Store, error) {
	errFactory := errors.New()

	o := &options{envPrefix: defaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	path := resolvePath(o)

	v := viper.New()
	setDefaults(v, filepath.Dir(path))

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if o.flags != nil {
		for name, key := range flagKeys {
			f := o.flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errFactory.Wrap(errors.ErrBindFlags, err)
			}
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	return &Store{
		cfg:  cfg,
		path: path,
		v:    v,
		log:  logger.Default().With("config"),
	}, nil
}

func resolvePath(o *options) string {
	if o.configPath != "" {
		return o.configPath
	}
	if env := os.Getenv(o.envPrefix + "_CONFIG"); env != "" {
		return env
	}
	if o.flags != nil {
		if p, err := o.flags.GetString("config"); err == nil && p != "" {
			return p
		}
	}
	return filepath.Join(DefaultDir(), configFileName)
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("auto_purge_enabled", false)
	v.SetDefault("standby_threshold_mb", DefaultStandbyThresholdMB)
	v.SetDefault("free_memory_threshold_mb", DefaultFreeMemoryThresholdMB)
	v.SetDefault("polling_rate_ms", DefaultPollingRateMs)
	v.SetDefault("start_with_windows", false)
	v.SetDefault("create_registry_backup", true)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("backup_dir", filepath.Join(dir, backupDirName))
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.db_path", filepath.Join(dir, historyFileName))
	v.SetDefault("history.batch_size", DefaultHistoryBatchSize)
	v.SetDefault("history.batch_timeout", DefaultHistoryBatchTimeout)
	v.SetDefault("debug", false)
	v.SetDefault("verbose", false)
}

func decode(v *viper.Viper) (Config, error) {
	errFactory := errors.New()

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToTimeHookFunc(time.RFC3339),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks every setting for a usable value.
func (c Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.StandbyThresholdMB <= 0 {
		return errFactory.WithData(errors.ErrInvalidThreshold, c.StandbyThresholdMB)
	}
	if c.FreeMemoryThresholdMB <= 0 {
		return errFactory.WithData(errors.ErrInvalidThreshold, c.FreeMemoryThresholdMB)
	}
	if c.PollingRateMs < MinPollingRateMs {
		return errFactory.WithData(errors.ErrInvalidInterval, c.PollingRateMs)
	}
	if c.History.Enabled && c.History.DBPath == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "history database path is empty")
	}
	if c.History.BatchSize < 0 || c.History.BatchTimeout < 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "history batching must not be negative")
	}

	return nil
}

// Path returns the settings file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Store) AutoPurgePolicy() AutoPurgePolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.AutoPurgePolicy()
}

func (s *Store) SetAutoPurgeEnabled(enabled bool) error {
	return s.update(func(c *Config) { c.AutoPurgeEnabled = enabled })
}

func (s *Store) SetStandbyThresholdMB(mb int) error {
	return s.update(func(c *Config) { c.StandbyThresholdMB = mb })
}

func (s *Store) SetFreeMemoryThresholdMB(mb int) error {
	return s.update(func(c *Config) { c.FreeMemoryThresholdMB = mb })
}

func (s *Store) SetPollingRateMs(ms int) error {
	return s.update(func(c *Config) { c.PollingRateMs = ms })
}

func (s *Store) SetStartWithWindows(enabled bool) error {
	return s.update(func(c *Config) { c.StartWithWindows = enabled })
}

func (s *Store) SetCreateRegistryBackup(enabled bool) error {
	return s.update(func(c *Config) { c.CreateRegistryBackup = enabled })
}

// MarkRun records the completion time of a cleanup operation.
func (s *Store) MarkRun(op Operation, at time.Time) error {
	errFactory := errors.New()

	var field *time.Time
	return s.update(func(c *Config) {
		switch op {
		case OpMemoryClean:
			field = &c.LastRun.MemoryClean
		case OpDNSFlush:
			field = &c.LastRun.DNSFlush
		case OpRecentFilesClear:
			field = &c.LastRun.RecentFilesClear
		case OpRegistryClean:
			field = &c.LastRun.RegistryClean
		}
		if field != nil {
			*field = at.UTC().Truncate(time.Second)
		}
	}, func() error {
		if field == nil {
			return errFactory.WithData(errors.ErrInvalidArgument, op.String())
		}
		return nil
	})
}

// LastRun returns when op last completed, or the zero time.
func (s *Store) LastRun(op Operation) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch op {
	case OpMemoryClean:
		return s.cfg.LastRun.MemoryClean
	case OpDNSFlush:
		return s.cfg.LastRun.DNSFlush
	case OpRecentFilesClear:
		return s.cfg.LastRun.RecentFilesClear
	case OpRegistryClean:
		return s.cfg.LastRun.RegistryClean
	default:
		return time.Time{}
	}
}

// update applies fn to a copy, validates it, persists it and only then makes
// it current. checks run after fn and may veto the change.
func (s *Store) update(fn func(*Config), checks ...func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	fn(&next)

	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}

	if err := next.Validate(); err != nil {
		return err
	}

	if err := write(s.path, next); err != nil {
		return err
	}

	s.cfg = next

	return nil
}

// Save rewrites the settings file from the current configuration.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return write(s.path, s.cfg)
}

func write(path string, cfg Config) error {
	errFactory := errors.New()

	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return errFactory.Wrap(errors.ErrWriteConfig, err)
	}

	w := viper.New()
	w.SetConfigType("toml")
	for key, value := range settings(cfg) {
		w.Set(key, value)
	}

	if err := w.WriteConfigAs(path); err != nil {
		return errFactory.Wrap(errors.ErrWriteConfig, err)
	}

	if err := os.Chmod(path, defaultFilePerm); err != nil {
		return errFactory.Wrap(errors.ErrWriteConfig, err)
	}

	return nil
}

// settings flattens the persisted part of cfg into viper keys. Zero
// timestamps are left out so the file only records runs that happened.
func settings(cfg Config) map[string]any {
	out := map[string]any{
		"auto_purge_enabled":       cfg.AutoPurgeEnabled,
		"standby_threshold_mb":     cfg.StandbyThresholdMB,
		"free_memory_threshold_mb": cfg.FreeMemoryThresholdMB,
		"polling_rate_ms":          cfg.PollingRateMs,
		"start_with_windows":       cfg.StartWithWindows,
		"create_registry_backup":   cfg.CreateRegistryBackup,
		"log_level":                cfg.LogLevel,
		"backup_dir":               cfg.BackupDir,
		"history.enabled":          cfg.History.Enabled,
		"history.db_path":          cfg.History.DBPath,
		"history.batch_size":       cfg.History.BatchSize,
		"history.batch_timeout":    cfg.History.BatchTimeout,
	}

	runs := map[string]time.Time{
		"last_run.memory_clean":       cfg.LastRun.MemoryClean,
		"last_run.dns_flush":          cfg.LastRun.DNSFlush,
		"last_run.recent_files_clear": cfg.LastRun.RecentFilesClear,
		"last_run.registry_clean":     cfg.LastRun.RegistryClean,
	}
	for key, at := range runs {
		if !at.IsZero() {
			out[key] = at.UTC().Format(time.RFC3339)
		}
	}

	return out
}

// Watch reloads the configuration whenever the settings file changes. The
// file is created first if it does not exist yet. Invalid edits are logged
// and ignored; the previous configuration stays current.
//
// Reloads read the file alone. Flags and environment overrides apply once,
// at Load; the setters write the merged values back, so a reload after a
// setter yields the setter's value.
func (s *Store) Watch(ctx context.Context, callback func(Config)) error {
	if _, err := os.Stat(s.path); isNotExist(err) {
		if err := s.Save(); err != nil {
			return err
		}
	}

	s.v.OnConfigChange(func(e fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}

		cfg, err := s.readFile()
		if err != nil {
			s.log.Warn().Err(err).Str("file", e.Name).Msg("Ignoring invalid configuration change")
			return
		}

		if !s.apply(cfg) {
			s.log.Debug().Str("file", e.Name).Msg("Configuration unchanged")
			return
		}

		s.log.Info().Str("file", e.Name).Msg("Configuration reloaded")

		if callback != nil {
			callback(s.Config())
		}
	})
	s.v.WatchConfig()

	return nil
}

// readFile decodes the settings file over the defaults, without the flag and
// environment layers.
func (s *Store) readFile() (Config, error) {
	v := viper.New()
	setDefaults(v, filepath.Dir(s.path))
	v.SetConfigFile(s.path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, errors.New().Wrap(errors.ErrReadConfig, err)
	}

	return decode(v)
}

// apply makes cfg current and reports whether anything changed. Our own
// writes come back through the watcher and compare equal.
func (s *Store) apply(cfg Config) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Command line only; not part of the file.
	cfg.Debug, cfg.Verbose = s.cfg.Debug, s.cfg.Verbose

	if sameConfig(s.cfg, cfg) {
		return false
	}
	s.cfg = cfg

	return true
}

func sameConfig(a, b Config) bool {
	if !a.LastRun.MemoryClean.Equal(b.LastRun.MemoryClean) ||
		!a.LastRun.DNSFlush.Equal(b.LastRun.DNSFlush) ||
		!a.LastRun.RecentFilesClear.Equal(b.LastRun.RecentFilesClear) ||
		!a.LastRun.RegistryClean.Equal(b.LastRun.RegistryClean) {
		return false
	}
	a.LastRun, b.LastRun = LastRun{}, LastRun{}

	return a == b
}

func isNotExist(err error) bool {
	if err == nil {
		return false
	}
	var notFound viper.ConfigFileNotFoundError
	return errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound)
}
