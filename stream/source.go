package stream

import "iter"

// Source is a stage that produces items rather than transforming written
// ones. It produces nothing until Start is called, so a pipeline can be fully
// connected before data begins to flow.
type Source[T any] struct {
	*Duplex[T]
	next    func() (T, bool)
	stop    func()
	started bool
	drained bool
}

// From creates a Source that emits items in order and then ends.
func From[T any](name Name, items ...T) *Source[T] {
	i := 0
	return newSource(name, func() (T, bool) {
		if i >= len(items) {
			var zero T
			return zero, false
		}
		item := items[i]
		i++
		return item, true
	}, nil)
}

// FromSeq creates a Source that pulls items from seq on demand.
// Call Close to release seq if the pipeline stops before it is exhausted.
func FromSeq[T any](name Name, seq iter.Seq[T]) *Source[T] {
	next, stop := iter.Pull(seq)
	return newSource(name, next, stop)
}

func newSource[T any](name Name, next func() (T, bool), stop func()) *Source[T] {
	s := &Source[T]{next: next, stop: stop}
	s.Duplex = New(name, Config[T]{Read: s.produce})
	return s
}

// Start begins producing items. Items are pushed until the consumer applies
// backpressure; production continues whenever the consumer asks for more.
func (s *Source[T]) Start() {
	if s.started {
		return
	}
	s.started = true
	s.reading = true
	s.produce()
	s.reading = false
}

func (s *Source[T]) produce() {
	if !s.started || s.drained {
		return
	}
	for {
		item, ok := s.next()
		if !ok {
			s.Close()
			s.End()
			return
		}
		if !s.Push(item) {
			return
		}
	}
}

// Close releases the underlying sequence. Items already pushed are still
// delivered.
func (s *Source[T]) Close() {
	if s.drained {
		return
	}
	s.drained = true
	if s.stop != nil {
		s.stop()
	}
}
