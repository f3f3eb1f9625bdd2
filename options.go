package plumbz

import (
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"

	"github.com/zoobzio/plumbz/stream"
)

// DefaultName is the stage name of a Sentinel created without WithName.
const DefaultName = "sentinel"

// Option configures a Sentinel.
type Option func(*options)

type options struct {
	handler   Handler
	logger    *zap.Logger
	clock     clockz.Clock
	name      stream.Name
	propagate bool
	disabled  bool
}

func newOptions(opts []Option) options {
	o := options{
		name:      DefaultName,
		clock:     clockz.RealClock,
		propagate: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// resolve returns the Handler the options select: nil when isolation is
// disabled, the explicit handler when one was given, LogHandler otherwise.
func (o options) resolve() Handler {
	switch {
	case o.disabled:
		return nil
	case o.handler != nil:
		return o.handler
	default:
		return LogHandler(o.logger)
	}
}

// WithHandler sets the Handler absorbed failures are passed to.
func WithHandler(h Handler) Option {
	return func(o *options) {
		o.handler = h
	}
}

// WithoutIsolation disables isolation. The Sentinel connects stages
// unmodified, so failures propagate exactly as without it.
func WithoutIsolation() Option {
	return func(o *options) {
		o.disabled = true
	}
}

// WithPropagation controls whether isolation extends past the first
// downstream connection. It is enabled by default.
func WithPropagation(propagate bool) Option {
	return func(o *options) {
		o.propagate = propagate
	}
}

// WithLogger sets the logger of the default LogHandler. It has no effect
// together with WithHandler.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock sets the clock used for event timestamps and handler durations.
func WithClock(clock clockz.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithName sets the Sentinel's stage name.
func WithName(name stream.Name) Option {
	return func(o *options) {
		o.name = name
	}
}
