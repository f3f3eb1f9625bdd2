package stream

import "slices"

type listener[F any] struct {
	fn F
	id uint64
}

type listeners[F any] struct {
	entries []listener[F]
}

func (l *listeners[F]) add(id uint64, fn F) {
	l.entries = append(l.entries, listener[F]{id: id, fn: fn})
}

func (l *listeners[F]) remove(id uint64) {
	l.entries = slices.DeleteFunc(l.entries, func(e listener[F]) bool {
		return e.id == id
	})
}

// snapshot lets listeners unsubscribe while an event is being emitted.
func (l *listeners[F]) snapshot() []listener[F] {
	return slices.Clone(l.entries)
}

func (l *listeners[F]) len() int {
	return len(l.entries)
}

type emitter[T any] struct {
	data   listeners[func(T)]
	end    listeners[func()]
	err    listeners[func(error)]
	drain  listeners[func()]
	finish listeners[func()]
	close  listeners[func()]
	next   uint64
}

func (e *emitter[T]) id() uint64 {
	e.next++
	return e.next
}

func (e *emitter[T]) onData(fn func(T)) func() {
	id := e.id()
	e.data.add(id, fn)
	return func() { e.data.remove(id) }
}

func (e *emitter[T]) onError(fn func(error)) func() {
	id := e.id()
	e.err.add(id, fn)
	return func() { e.err.remove(id) }
}

func (e *emitter[T]) onSignal(l *listeners[func()], fn func()) func() {
	id := e.id()
	l.add(id, fn)
	return func() { l.remove(id) }
}

func (e *emitter[T]) emitData(item T) {
	for _, l := range e.data.snapshot() {
		l.fn(item)
	}
}

func (e *emitter[T]) emitError(err error) {
	for _, l := range e.err.snapshot() {
		l.fn(err)
	}
}

func (*emitter[T]) emitSignal(l *listeners[func()]) {
	for _, entry := range l.snapshot() {
		entry.fn()
	}
}

func (e *emitter[T]) count(event Event) int {
	switch event {
	case EventData:
		return e.data.len()
	case EventEnd:
		return e.end.len()
	case EventError:
		return e.err.len()
	case EventDrain:
		return e.drain.len()
	case EventFinish:
		return e.finish.len()
	case EventClose:
		return e.close.len()
	default:
		return 0
	}
}
