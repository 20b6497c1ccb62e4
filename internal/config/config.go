package config

import (
	"os"
	"strings"

	"codeberg.org/mutker/smlmqttprocessor/internal/errors"
	"codeberg.org/mutker/smlmqttprocessor/internal/metrics"
	"codeberg.org/mutker/smlmqttprocessor/internal/publish"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultWindow      = 30
	DefaultLogLevel    = LogLevelWarning
	DefaultInput       = "-"
	DefaultPublisher   = publish.KindMQTT
	DefaultMQTTHost    = "localhost"
	DefaultMQTTPort    = 1883
	DefaultTopicPrefix = publish.DefaultTopicPrefix
	DefaultNATSURL     = "nats://127.0.0.1:4222"

	defaultEnvPrefix  = "SMLMQTT"
	defaultConfigName = "smlmqttprocessor"
	maskedPassword    = "********"
)

type MQTTConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	TopicPrefix string
	SingleTopic bool
	Retain      bool
}

type NATSConfig struct {
	URL string
}

type Config struct {
	Window          int
	Timeout         int
	Input           string
	LogLevel        LogLevel
	NoMQTT          bool
	Publisher       string
	MQTT            MQTTConfig
	NATS            NATSConfig
	DeltaThresholds map[string]float64
	Metrics         metrics.Config
	PIDFile         string
	ConfigFile      string
	ShowVersion     bool
}

// Load reads the configuration from defaults, config file, environment and
// the command line args, in ascending precedence.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{
		envPrefix:   defaultEnvPrefix,
		searchPaths: []string{"/etc", "/etc/" + defaultConfigName},
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	for key, value := range o.defaults {
		v.SetDefault(key, value)
	}

	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
	}
	if err := bindFlags(v, flags); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := o.configPath
	if path, _ := flags.GetString("config"); path != "" {
		configPath = path
	}
	if configPath == "" {
		configPath = os.Getenv(o.envPrefix + "_CONFIG")
	}
	if err := readConfigFile(v, configPath, o.searchPaths); err != nil {
		return nil, err
	}

	cfg := &Config{
		Window:      window(v, flags, o.envPrefix),
		Timeout:     v.GetInt("timeout"),
		Input:       DefaultInput,
		LogLevel:    logLevel(v),
		NoMQTT:      v.GetBool("no_mqtt"),
		Publisher:   strings.ToLower(v.GetString("publisher")),
		PIDFile:     v.GetString("pid_file"),
		ConfigFile:  v.ConfigFileUsed(),
		ShowVersion: v.GetBool("version"),
		MQTT: MQTTConfig{
			Host:        v.GetString("mqtt.host"),
			Port:        v.GetInt("mqtt.port"),
			Username:    v.GetString("mqtt.username"),
			Password:    v.GetString("mqtt.password"),
			TopicPrefix: v.GetString("mqtt.topic_prefix"),
			SingleTopic: v.GetBool("mqtt.single_topic"),
			Retain:      v.GetBool("mqtt.retain"),
		},
		NATS: NATSConfig{
			URL: v.GetString("nats.url"),
		},
		Metrics: metrics.Config{
			Enabled: v.GetBool("metrics.enabled"),
			Listen:  v.GetString("metrics.listen"),
		},
		DeltaThresholds: thresholds(v),
	}

	if flags.NArg() > 0 {
		cfg.Input = flags.Arg(0)
	}
	if cfg.NoMQTT {
		cfg.Publisher = publish.KindStdout
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("window", DefaultWindow)
	v.SetDefault("timeout", 0)
	v.SetDefault("log_level", DefaultLogLevel.String())
	v.SetDefault("verbose", false)
	v.SetDefault("quiet", false)
	v.SetDefault("no_mqtt", false)
	v.SetDefault("publisher", DefaultPublisher)
	v.SetDefault("pid_file", "")
	v.SetDefault("mqtt.host", DefaultMQTTHost)
	v.SetDefault("mqtt.port", DefaultMQTTPort)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_prefix", DefaultTopicPrefix)
	v.SetDefault("mqtt.single_topic", false)
	v.SetDefault("mqtt.retain", false)
	v.SetDefault("nats.url", DefaultNATSURL)
	defaults := metrics.DefaultConfig()
	v.SetDefault("metrics.enabled", defaults.Enabled)
	v.SetDefault("metrics.listen", defaults.Listen)
}

func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("smlmqttprocessor", pflag.ContinueOnError)
	flags.SortFlags = false
	flags.Usage = func() {
		_, _ = os.Stderr.WriteString("Usage: smlmqttprocessor [options] [--config file] <input|->\n\n")
		flags.PrintDefaults()
	}

	flags.String("config", "", "Configuration file")
	flags.IntP("window", "w", DefaultWindow, "Window size")
	flags.IntP("timeout", "t", 0, "Timeout in no-data attempts (about seconds), 0 to never time out")
	flags.String("log-level", DefaultLogLevel.String(), "Log level (debug, info, warning, error)")
	flags.BoolP("verbose", "v", false, "Verbose output (info level)")
	flags.BoolP("quiet", "q", false, "Be quiet, show only errors")
	flags.Bool("no-mqtt", false, "Do not publish, print instead (mainly for testing)")
	flags.String("publisher", DefaultPublisher, "Publisher ("+strings.Join(publish.Kinds, ", ")+")")
	flags.String("pid-file", "", "PID file")
	flags.Bool("version", false, "Show version")

	return flags
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	bindings := map[string]string{
		"window":    "window",
		"timeout":   "timeout",
		"log_level": "log-level",
		"verbose":   "verbose",
		"quiet":     "quiet",
		"no_mqtt":   "no-mqtt",
		"publisher": "publisher",
		"pid_file":  "pid-file",
		"version":   "version",
	}
	for key, name := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

func readConfigFile(v *viper.Viper, path string, searchPaths []string) error {
	errFactory := errors.New()

	if path != "" {
		// an explicitly named file must exist
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
		return nil
	}

	v.SetConfigName(defaultConfigName)
	for _, dir := range searchPaths {
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}
	return nil
}

// window honors the block_size key of older configuration files unless a
// window is set explicitly.
func window(v *viper.Viper, flags *pflag.FlagSet, envPrefix string) int {
	if flags.Changed("window") || v.InConfig("window") || os.Getenv(envPrefix+"_WINDOW") != "" {
		return v.GetInt("window")
	}
	for _, key := range []string{"block_size", "default.block_size"} {
		if v.IsSet(key) {
			return v.GetInt(key)
		}
	}
	return v.GetInt("window")
}

// logLevel applies -v, -q and DEBUG=1 on top of the configured level.
func logLevel(v *viper.Viper) LogLevel {
	level := LogLevel(strings.ToLower(v.GetString("log_level")))
	if level == "warn" {
		level = LogLevelWarning
	}
	if v.GetBool("verbose") {
		level = LogLevelInfo
	}
	if v.GetBool("quiet") {
		level = LogLevelError
	}
	if os.Getenv("DEBUG") == "1" {
		level = LogLevelDebug
	}
	return level
}

// thresholds reads the delta_thresholds table, or the DeltaThresholds
// section of an ini file.
func thresholds(v *viper.Viper) map[string]float64 {
	result := make(map[string]float64)
	for _, section := range []string{"delta_thresholds", "deltathresholds"} {
		for name := range v.GetStringMap(section) {
			result[name] = v.GetFloat64(section + "." + name)
		}
	}
	return result
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Window < 1 {
		return errFactory.Wrap(errors.ErrInvalidWindow,
			&ValidationError{Field: "window", Value: c.Window, Reason: "must be at least 1"})
	}
	if c.Timeout < 0 {
		return errFactory.Wrap(errors.ErrInvalidTimeout,
			&ValidationError{Field: "timeout", Value: c.Timeout, Reason: "must not be negative"})
	}
	if !c.LogLevel.IsValid() {
		return errFactory.Wrap(errors.ErrInvalidLogLevel,
			&ValidationError{Field: "log_level", Value: c.LogLevel, Reason: "unknown level"})
	}
	if !isKnownPublisher(c.Publisher) {
		return errFactory.Wrap(errors.ErrInvalidPublisher,
			&ValidationError{Field: "publisher", Value: c.Publisher, Reason: "expected one of " + strings.Join(publish.Kinds, ", ")})
	}
	if c.Publisher == publish.KindMQTT && (c.MQTT.Host == "" || c.MQTT.Port <= 0) {
		return errFactory.Wrap(errors.ErrInvalidConfig,
			&ValidationError{Field: "mqtt", Value: c.MQTT.Host, Reason: "host and port are required"})
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	return nil
}

func isKnownPublisher(name string) bool {
	for _, p := range publish.Kinds {
		if p == name {
			return true
		}
	}
	return false
}

// MarshalZerologObject logs the configuration with the password masked.
func (c *Config) MarshalZerologObject(e *zerolog.Event) {
	password := ""
	if c.MQTT.Password != "" {
		password = maskedPassword
	}

	e.Str("config_file", c.ConfigFile).
		Int("window", c.Window).
		Int("timeout", c.Timeout).
		Str("input", c.Input).
		Str("log_level", c.LogLevel.String()).
		Str("publisher", c.Publisher).
		Str("mqtt_host", c.MQTT.Host).
		Int("mqtt_port", c.MQTT.Port).
		Str("mqtt_username", c.MQTT.Username).
		Str("mqtt_password", password).
		Str("topic_prefix", c.MQTT.TopicPrefix).
		Bool("single_topic", c.MQTT.SingleTopic).
		Bool("retain", c.MQTT.Retain).
		Str("nats_url", c.NATS.URL).
		Interface("delta_thresholds", c.DeltaThresholds).
		Bool("metrics", c.Metrics.Enabled).
		Str("metrics_listen", c.Metrics.Listen).
		Str("pid_file", c.PIDFile)
}
