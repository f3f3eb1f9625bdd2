// Package stream provides the push-based stream abstraction that plumbz
// pipelines are built from.
//
// # Overview
//
// A Stream is a stage with a writable side and a readable side. Items written
// to a stage are handed to its transform one at a time; each write is
// acknowledged once the transform completes. Items the transform produces are
// pushed to the readable side, where they are either emitted to data
// listeners (flowing mode) or buffered until a consumer resumes the stream.
//
// Stages are connected with Pipe, which returns the destination so further
// connections can be chained:
//
//	src := stream.From("numbers", 1, 2, 3, 4)
//	out := src.
//	    Pipe(stream.Filter("odd", func(_ context.Context, n int) bool { return n%2 == 1 })).
//	    Pipe(stream.Transform("double", func(_ context.Context, n int) int { return n * 2 }))
//	sink := stream.Collect[int]("sink")
//	out.Pipe(sink)
//	src.Start()
//
// # Flow control
//
// Each side keeps a buffer bounded by a high-water mark. Write returns false
// when the writable queue is full; the caller should stop writing until the
// stage emits EventDrain. A transform's acknowledgement is withheld while the
// readable buffer is full, so backpressure travels upstream one stage at a
// time. Pipe implements this protocol.
//
// # Failure
//
// A transform that fails destroys its stage: the stage emits EventError and,
// unless a listener recovers it, EventClose. A piped source disconnects from a
// destination that fails, halting the pipeline at that edge. Stages that
// implement Recoverer can be returned to a usable state from within an error
// listener.
//
// # Concurrency
//
// Streams are not safe for concurrent use. Events are emitted synchronously
// on the goroutine that triggered them, so a pipeline must be driven from a
// single goroutine. Done and Finished may be observed from any goroutine.
package stream

import "context"

// Name identifies a stage in logs, errors, and events.
type Name = string

// Event identifies a notification a stream emits.
type Event string

// Stream events.
const (
	EventData   Event = "data"
	EventEnd    Event = "end"
	EventError  Event = "error"
	EventDrain  Event = "drain"
	EventFinish Event = "finish"
	EventClose  Event = "close"
)

// Stream is the capability contract every pipeline stage satisfies.
//
// Pipe connects the receiver to dst and returns dst, so connections chain.
// Write hands one item to the writable side and reports whether more items may
// be written before the next EventDrain; ack is called once the item has been
// processed, with a non-nil error if processing failed. The On* methods
// register listeners and return a function that removes them.
type Stream[T any] interface {
	Name() Name
	Pipe(dst Stream[T], opts ...PipeOption) Stream[T]
	Unpipe(dst Stream[T])
	Write(item T, ack func(error)) bool
	End()
	OnData(fn func(T)) func()
	OnEnd(fn func()) func()
	OnError(fn func(error)) func()
	OnDrain(fn func()) func()
	OnFinish(fn func()) func()
	OnClose(fn func()) func()
	ListenerCount(event Event) int
	Pause()
	Resume()
	Err() error
	Done() <-chan struct{}
}

// Recoverer is implemented by streams that can be returned to a usable state
// after a failure destroyed them. Recover must be called from within an
// EventError listener to prevent the stream from closing.
type Recoverer interface {
	Recover()
}

// PipeOption configures a single Pipe connection.
type PipeOption func(*pipeConfig)

type pipeConfig struct {
	end bool
}

// WithoutEnd keeps the destination open when the source ends.
func WithoutEnd() PipeOption {
	return func(c *pipeConfig) {
		c.end = false
	}
}

// Finished blocks until s has closed or failed, or ctx is done.
// It returns the failure that destroyed s, if any.
func Finished[T any](ctx context.Context, s Stream[T]) error {
	select {
	case <-s.Done():
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Settled reports whether s has already closed or failed, without blocking.
// Pipelines run synchronously, so once the source has been started a stage
// that has not settled is stalled behind a failure or a paused consumer.
func Settled[T any](s Stream[T]) (bool, error) {
	select {
	case <-s.Done():
		return true, s.Err()
	default:
		return false, s.Err()
	}
}
