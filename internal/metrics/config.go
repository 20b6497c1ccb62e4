package metrics

import "codeberg.org/mutker/smlmqttprocessor/internal/errors"

const defaultListen = ":9108"

type Config struct {
	Enabled bool
	Listen  string
}

func DefaultConfig() Config {
	return Config{
		Listen:  defaultListen,
		Enabled: false, // Disabled by default
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate the listen address if metrics are enabled
	if c.Enabled && c.Listen == "" {
		return errFactory.New(ErrInvalidListen)
	}
	return nil
}
