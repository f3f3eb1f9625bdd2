package plumbz

import (
	"errors"

	"github.com/zoobzio/plumbz/stream"
)

type wrapState uint8

const (
	// No write is in flight.
	stateIdle wrapState = iota
	// A write was forwarded; neither its acknowledgement nor a failure has
	// been observed.
	stateAwaiting
	// The target acknowledged with an error before emitting its failure.
	stateAckFailed
	// The failure was absorbed before the acknowledgement arrived.
	stateFailureSeen
)

// Wrapper is the proxy stage interposed before a real downstream stage. It
// forwards every written item to the target one at a time, relays the
// target's data, drain, and end, and hands the target's failures to a Handler
// instead of letting them tear the pipeline down.
//
// A Wrapper acknowledges a write once the target has acknowledged it or has
// failed processing it. A failed item produces no output; the acknowledgement
// is still successful.
type Wrapper[T any] struct {
	*stream.Duplex[T]
	target      stream.Stream[T]
	iso         *isolation
	pending     func(error)
	flushDone   func(error)
	offs        []func()
	onDetach    func()
	state       wrapState
	paused      bool
	targetEnded bool
	detached    bool
	intercepted bool
}

// Wrap interposes a Wrapper between target and whatever is connected to the
// returned stage. A nil handler disables wrapping and returns target
// unchanged.
func Wrap[T any](target stream.Stream[T], handler Handler) stream.Stream[T] {
	if handler == nil {
		return target
	}
	return wrap(newIsolation(target.Name(), handler, false), target)
}

func wrap[T any](iso *isolation, target stream.Stream[T]) *Wrapper[T] {
	w := &Wrapper[T]{
		target: target,
		iso:    iso,
	}
	w.Duplex = stream.New(target.Name(), stream.Config[T]{
		Transform: w.transform,
		Flush:     w.flush,
		Read:      w.read,
	})
	iso.attach()

	w.listen(target.OnError(w.onFailure))
	w.listen(target.OnEnd(w.onEnd))
	w.listen(target.OnDrain(w.NotifyDrain))
	w.listen(target.OnClose(w.onClose))
	// Registering for data resumes the target, which may flush buffered items
	// straight into the wrapper.
	w.listen(target.OnData(w.onData))
	return w
}

// Target returns the stage the wrapper isolates.
func (w *Wrapper[T]) Target() stream.Stream[T] {
	return w.target
}

func (w *Wrapper[T]) listen(off func()) {
	if w.detached {
		off()
		return
	}
	w.offs = append(w.offs, off)
}

func (w *Wrapper[T]) detach() {
	if w.detached {
		return
	}
	w.detached = true
	offs := w.offs
	w.offs = nil
	for _, off := range offs {
		off()
	}
	w.iso.detach()
	w.iso.release(w.target)
	if w.onDetach != nil {
		w.onDetach()
	}
}

func (w *Wrapper[T]) transform(item T, _ func(T) bool, done func(error)) {
	w.state = stateAwaiting
	w.pending = done
	w.iso.count(IsolationItemsTotal)
	w.target.Write(item, w.onAck)
}

func (w *Wrapper[T]) onAck(err error) {
	switch w.state {
	case stateAwaiting:
		if err == nil || errors.Is(err, stream.ErrDestroyed) || errors.Is(err, stream.ErrWriteAfterEnd) {
			w.settle()
			return
		}
		w.state = stateAckFailed
	case stateFailureSeen:
		w.settle()
	}
}

func (w *Wrapper[T]) onFailure(err error) {
	if r, ok := w.target.(stream.Recoverer); ok {
		r.Recover()
	}
	prev := w.state
	if prev == stateAwaiting {
		w.state = stateFailureSeen
	}
	// The handler runs before the pending write is released so that a failure
	// on the next item cannot reach it first.
	w.iso.absorb(w.target.Name(), err)
	if prev == stateAckFailed {
		w.settle()
	}
}

func (w *Wrapper[T]) settle() {
	done := w.pending
	w.pending = nil
	w.state = stateIdle
	if done != nil {
		done(nil)
	}
}

func (w *Wrapper[T]) onData(item T) {
	if !w.Push(item) && !w.paused {
		w.paused = true
		w.target.Pause()
	}
}

func (w *Wrapper[T]) read() {
	if w.paused {
		w.paused = false
		w.target.Resume()
	}
}

func (w *Wrapper[T]) onEnd() {
	w.targetEnded = true
	w.detach()
	if done := w.flushDone; done != nil {
		w.flushDone = nil
		done(nil)
		return
	}
	w.End()
}

// onClose handles a target that closed without ending, which only happens
// once it is destroyed beyond recovery.
func (w *Wrapper[T]) onClose() {
	if w.targetEnded {
		return
	}
	w.detach()
	if done := w.flushDone; done != nil {
		w.flushDone = nil
		done(nil)
	}
}

func (w *Wrapper[T]) flush(_ func(T) bool, done func(error)) {
	if w.targetEnded || w.detached {
		done(nil)
		return
	}
	w.flushDone = done
	w.target.End()
}

func (w *Wrapper[T]) tags() tag {
	if w.intercepted {
		return tagIntercepted
	}
	return 0
}

func (w *Wrapper[T]) markIntercepted() {
	w.intercepted = true
}
