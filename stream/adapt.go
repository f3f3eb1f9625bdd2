package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/zoobzio/clockz"
)

// Option configures a stage built by one of the adapter functions.
type Option func(*settings)

type settings struct {
	ctx       context.Context
	clock     clockz.Clock
	highWater int
}

func newSettings(opts []Option) settings {
	s := settings{
		ctx:   context.Background(),
		clock: clockz.RealClock,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithContext sets the context passed to the stage function.
func WithContext(ctx context.Context) Option {
	return func(s *settings) {
		s.ctx = ctx
	}
}

// WithHighWaterMark sets how many items the stage buffers on each side.
func WithHighWaterMark(n int) Option {
	return func(s *settings) {
		s.highWater = n
	}
}

// WithClock sets the clock used to timestamp stage failures.
func WithClock(clock clockz.Clock) Option {
	return func(s *settings) {
		s.clock = clock
	}
}

// stage adapts fn into a Duplex. fn returns the item to push, whether to push
// it, and an error that fails the stage.
func stage[T any](name Name, opts []Option, fn func(context.Context, T) (T, bool, error)) *Duplex[T] {
	s := newSettings(opts)
	return New(name, Config[T]{
		Context:       s.ctx,
		HighWaterMark: s.highWater,
		Transform: func(item T, push func(T) bool, done func(error)) {
			start := s.clock.Now()
			result, keep, err := safely(s.ctx, item, fn)
			if err != nil {
				done(&StageError[T]{
					Stage:     name,
					Item:      item,
					Err:       err,
					Timestamp: s.clock.Now(),
					Duration:  s.clock.Since(start),
					Timeout:   errors.Is(err, context.DeadlineExceeded),
					Canceled:  errors.Is(err, context.Canceled),
				})
				return
			}
			if keep {
				push(result)
			}
			done(nil)
		},
	})
}

func safely[T any](ctx context.Context, item T, fn func(context.Context, T) (T, bool, error)) (result T, keep bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result, keep, err = zero, false, fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn(ctx, item)
}

// PassThrough creates a stage that emits every item unchanged.
func PassThrough[T any](name Name, opts ...Option) *Duplex[T] {
	s := newSettings(opts)
	return New[T](name, Config[T]{Context: s.ctx, HighWaterMark: s.highWater})
}

// Transform creates a stage that applies a pure transformation to every item.
// Use it when the operation always succeeds; use Apply when it might fail.
//
// Example:
//
//	upper := stream.Transform("uppercase", func(_ context.Context, s string) string {
//	    return strings.ToUpper(s)
//	})
func Transform[T any](name Name, fn func(context.Context, T) T, opts ...Option) *Duplex[T] {
	return stage(name, opts, func(ctx context.Context, item T) (T, bool, error) {
		return fn(ctx, item), true, nil
	})
}

// Apply creates a stage from a function that transforms an item and may fail.
// A failure destroys the stage with a *StageError[T] wrapping the returned
// error, which halts an uninstrumented pipeline at this stage.
//
// Example:
//
//	parse := stream.Apply("parse_json", func(_ context.Context, raw []byte) ([]byte, error) {
//	    if !json.Valid(raw) {
//	        return nil, errors.New("invalid JSON")
//	    }
//	    return raw, nil
//	})
func Apply[T any](name Name, fn func(context.Context, T) (T, error), opts ...Option) *Duplex[T] {
	return stage(name, opts, func(ctx context.Context, item T) (T, bool, error) {
		result, err := fn(ctx, item)
		return result, err == nil, err
	})
}

// Effect creates a stage that inspects each item without modifying it, such
// as logging, metrics, or validation. A returned error fails the stage;
// otherwise the item passes through unchanged.
func Effect[T any](name Name, fn func(context.Context, T) error, opts ...Option) *Duplex[T] {
	return stage(name, opts, func(ctx context.Context, item T) (T, bool, error) {
		if err := fn(ctx, item); err != nil {
			return item, false, err
		}
		return item, true, nil
	})
}

// Filter creates a stage that only emits items matching predicate.
func Filter[T any](name Name, predicate func(context.Context, T) bool, opts ...Option) *Duplex[T] {
	return stage(name, opts, func(ctx context.Context, item T) (T, bool, error) {
		return item, predicate(ctx, item), nil
	})
}

// Mutate creates a stage that applies transformer only to items matching
// condition; all other items pass through unchanged.
func Mutate[T any](name Name, transformer func(context.Context, T) T, condition func(context.Context, T) bool, opts ...Option) *Duplex[T] {
	return stage(name, opts, func(ctx context.Context, item T) (T, bool, error) {
		if condition(ctx, item) {
			return transformer(ctx, item), true, nil
		}
		return item, true, nil
	})
}

// Enrich creates a stage that attempts to enhance each item. If fn fails the
// original item is emitted instead and the stage keeps running.
func Enrich[T any](name Name, fn func(context.Context, T) (T, error), opts ...Option) *Duplex[T] {
	return stage(name, opts, func(ctx context.Context, item T) (T, bool, error) {
		enriched, err := fn(ctx, item)
		if err != nil {
			return item, true, nil
		}
		return enriched, true, nil
	})
}
