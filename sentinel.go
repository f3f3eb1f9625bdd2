package plumbz

import (
	"context"

	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"

	"github.com/zoobzio/plumbz/stream"
)

// Sentinel is the pass-through stage inserted at the head of a pipeline. Its
// connections, and by default every connection made downstream of them, are
// isolated: stage failures go to the Sentinel's Handler and the pipeline
// keeps running.
//
// Example:
//
//	sentinel := plumbz.New[Event](
//	    plumbz.WithName("ingest"),
//	    plumbz.WithLogger(logger),
//	)
//	defer sentinel.Close()
//
//	sentinel.
//	    Pipe(stream.Apply("parse", parse)).
//	    Pipe(stream.Effect("store", store))
//
//	// Track absorbed failures
//	sentinel.OnAbsorbed(func(ctx context.Context, event plumbz.IsolationEvent) error {
//	    alerts.Inc(event.Stage)
//	    return nil
//	})
type Sentinel[T any] struct {
	*Interceptor[T]
}

// New creates a Sentinel. Without WithHandler, failures are logged once each
// by LogHandler; WithoutIsolation disables isolation altogether.
func New[T any](opts ...Option) *Sentinel[T] {
	o := newOptions(opts)
	iso := newIsolation(o.name, o.resolve(), o.propagate)
	iso.clock = o.clock
	iso.observe()

	return &Sentinel[T]{
		Interceptor: &Interceptor[T]{
			Stream: stream.PassThrough[T](o.name),
			iso:    iso,
		},
	}
}

// Handle creates a Sentinel that passes absorbed failures to h. A nil h
// selects the default LogHandler.
func Handle[T any](h Handler, opts ...Option) *Sentinel[T] {
	return New[T](append([]Option{WithHandler(h)}, opts...)...)
}

// Handler returns the Handler absorbed failures are passed to, or nil when
// isolation is disabled.
func (s *Sentinel[T]) Handler() Handler {
	return s.iso.handler
}

// Propagates reports whether isolation extends past the first connection.
func (s *Sentinel[T]) Propagates() bool {
	return s.iso.propagate
}

// Metrics returns the metrics registry for this sentinel.
func (s *Sentinel[T]) Metrics() *metricz.Registry {
	return s.iso.metrics
}

// Tracer returns the tracer for this sentinel.
func (s *Sentinel[T]) Tracer() *tracez.Tracer {
	return s.iso.tracer
}

// Close shuts down observability components and forgets the intercepted
// marks still recorded on stages this package does not own. Marks on stages
// whose wrapper has already detached are gone by then.
func (s *Sentinel[T]) Close() error {
	return s.iso.close()
}

// OnWrapped registers a handler for when a stage is wrapped.
// The handler is called asynchronously.
func (s *Sentinel[T]) OnWrapped(handler func(context.Context, IsolationEvent) error) error {
	_, err := s.iso.hooks.Hook(IsolationEventWrapped, handler)
	return err
}

// OnAbsorbed registers a handler for when a failure has been passed to the
// Handler. The handler is called asynchronously.
func (s *Sentinel[T]) OnAbsorbed(handler func(context.Context, IsolationEvent) error) error {
	_, err := s.iso.hooks.Hook(IsolationEventAbsorbed, handler)
	return err
}

// OnBypassed registers a handler for when a connection to a Terminator or
// Sentinel skips wrapping. The handler is called asynchronously.
func (s *Sentinel[T]) OnBypassed(handler func(context.Context, IsolationEvent) error) error {
	_, err := s.iso.hooks.Hook(IsolationEventBypassed, handler)
	return err
}

func (*Sentinel[T]) tags() tag {
	return tagSentinel | tagIntercepted
}

// Terminator is a pass-through stage that stops isolation propagation.
// Connecting a Terminator from an isolated stage connects it unmodified, and
// stages connected after it are not isolated.
type Terminator[T any] struct {
	*stream.Duplex[T]
}

// Stop creates a Terminator.
func Stop[T any]() *Terminator[T] {
	return &Terminator[T]{Duplex: stream.PassThrough[T]("terminator")}
}

func (*Terminator[T]) tags() tag {
	return tagTerminator
}
