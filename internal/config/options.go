package config

import (
	"fmt"

	"codeberg.org/mutker/smlmqttprocessor/internal/logger"
)

// Option adjusts how Load finds its sources.
type Option func(*options) error

type options struct {
	configPath  string
	envPrefix   string
	searchPaths []string
	defaults    map[string]any
}

// WithConfigFile names the configuration file. It must exist.
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// WithEnvPrefix replaces the SMLMQTT environment prefix.
func WithEnvPrefix(prefix string) Option {
	return func(o *options) error {
		if prefix == "" {
			return fmt.Errorf("empty environment prefix")
		}
		o.envPrefix = prefix
		return nil
	}
}

// WithSearchPaths replaces the directories searched for
// smlmqttprocessor.{toml,yaml,json,ini} when no file is named.
func WithSearchPaths(paths ...string) Option {
	return func(o *options) error {
		o.searchPaths = paths
		return nil
	}
}

// WithDefault overrides the built-in default of a configuration key, e.g.
// mqtt.retain for a program that should retain by default.
func WithDefault(key string, value any) Option {
	return func(o *options) error {
		if key == "" {
			return fmt.Errorf("empty configuration key")
		}
		if o.defaults == nil {
			o.defaults = make(map[string]any)
		}
		o.defaults[key] = value
		return nil
	}
}

// LogLevel is a configured log level name.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

func (l LogLevel) IsValid() bool {
	_, ok := logger.ParseLevel(string(l))
	return ok
}

// Level returns the matching logger level, warning for unknown names.
func (l LogLevel) Level() logger.LogLevel {
	level, _ := logger.ParseLevel(string(l))
	return level
}

func (l LogLevel) String() string {
	return string(l)
}

// ValidationError describes a rejected configuration value.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s=%v: %s", e.Field, e.Value, e.Reason)
}
