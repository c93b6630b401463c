package config

import (
	"context"

	"github.com/spf13/pflag"
)

// Provider gives read access to the current configuration. Values returned
// are copies; a Provider may be updated live, so callers that need the
// latest value must ask again rather than caching.
type Provider interface {
	// Config returns a copy of the whole configuration
	Config() Config

	// AutoPurgePolicy returns the auto-purge policy in bytes and durations
	AutoPurgePolicy() AutoPurgePolicy
}

// Watcher enables live configuration updates
type Watcher interface {
	// Watch starts watching the configuration file for changes.
	// The callback is called after a changed file has been loaded and validated.
	Watch(ctx context.Context, callback func(Config)) error
}

// Option defines a configuration option that can be passed to Load
type Option func(*options) error

// options holds internal configuration options
type options struct {
	configPath string
	envPrefix  string
	flags      *pflag.FlagSet
}

// WithConfigFile specifies an explicit configuration file path
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// WithEnvPrefix specifies a custom environment variable prefix
// Default is "SYSOPTCTL"
func WithEnvPrefix(prefix string) Option {
	return func(o *options) error {
		o.envPrefix = prefix
		return nil
	}
}

// WithFlags binds parsed command line flags registered by RegisterFlags.
// Flags that were set take precedence over the file and the environment.
func WithFlags(fs *pflag.FlagSet) Option {
	return func(o *options) error {
		o.flags = fs
		return nil
	}
}

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

// String implements the Stringer interface
func (l LogLevel) String() string {
	return string(l)
}
