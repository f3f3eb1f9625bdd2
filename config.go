package plumbz

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/zoobzio/plumbz/stream"
)

// Handler names accepted by Config.
const (
	HandlerLog = "log"
	HandlerOff = "off"
)

// Config is the file and environment form of the Sentinel options.
type Config struct {
	Name      stream.Name `mapstructure:"name" yaml:"name"`
	Handler   string      `mapstructure:"handler" yaml:"handler"`
	Propagate bool        `mapstructure:"propagate" yaml:"propagate"`
}

// DefaultConfig returns the configuration New uses when given no options.
func DefaultConfig() Config {
	return Config{
		Name:      DefaultName,
		Handler:   HandlerLog,
		Propagate: true,
	}
}

// Validate reports whether c names a known handler.
func (c Config) Validate() error {
	switch c.Handler {
	case HandlerLog, HandlerOff:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownHandler, c.Handler)
	}
}

// Options converts c into Sentinel options. logger backs the log handler.
func (c Config) Options(logger *zap.Logger) ([]Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	opts := []Option{WithPropagation(c.Propagate)}
	if c.Name != "" {
		opts = append(opts, WithName(c.Name))
	}
	if c.Handler == HandlerOff {
		return append(opts, WithoutIsolation()), nil
	}
	return append(opts, WithLogger(logger)), nil
}
