package stream

import "slices"

// Sink is a terminal stage that records every item written to it.
type Sink[T any] struct {
	*Duplex[T]
	items []T
}

// Collect creates a Sink. It completes, emitting EventFinish and EventClose,
// once the stage feeding it ends.
func Collect[T any](name Name, opts ...Option) *Sink[T] {
	s := &Sink[T]{}
	settings := newSettings(opts)
	s.Duplex = New(name, Config[T]{
		Context:       settings.ctx,
		HighWaterMark: settings.highWater,
		Transform: func(item T, _ func(T) bool, done func(error)) {
			s.items = append(s.items, item)
			done(nil)
		},
	})
	// Nothing is ever pushed; flowing lets the readable side end on its own.
	s.Resume()
	return s
}

// Items returns a copy of everything written so far.
func (s *Sink[T]) Items() []T {
	return slices.Clone(s.items)
}

// Len returns the number of items written so far.
func (s *Sink[T]) Len() int {
	return len(s.items)
}
