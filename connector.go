package plumbz

import (
	"github.com/zoobzio/tracez"

	"github.com/zoobzio/plumbz/stream"
)

// Interceptor decorates a stream so its connections are isolation-aware.
// Every method except Pipe and Unpipe is the decorated stream's own.
//
// Pipe wraps the destination in a Wrapper, connects the decorated stream to
// the wrapper, and returns the wrapper, itself decorated when isolation
// propagates. Code that chains connections off Pipe's return value therefore
// stays isolated without knowing it.
type Interceptor[T any] struct {
	stream.Stream[T]
	iso   *isolation
	links []link[T]
}

type link[T any] struct {
	dst   stream.Stream[T]
	proxy stream.Stream[T]
}

// Intercept decorates s so every stage connected to it is isolated with
// handler. With propagate, stages connected further down the chain are
// isolated too. Intercepting a stream that is already intercepted, a
// Sentinel, or a Terminator returns it unchanged.
func Intercept[T any](s stream.Stream[T], handler Handler, propagate bool) stream.Stream[T] {
	return intercept(newIsolation(s.Name(), handler, propagate), s)
}

func intercept[T any](iso *isolation, s stream.Stream[T]) stream.Stream[T] {
	if IsIntercepted(s) || IsSentinel(s) || IsTerminator(s) {
		return s
	}
	return &Interceptor[T]{Stream: s, iso: iso}
}

// Pipe connects the decorated stream to dst through an isolating Wrapper and
// returns the wrapper. Terminators and Sentinels are connected unmodified and
// returned as-is, which stops propagation. Pipe panics with
// ErrNilDestination if dst is nil.
func (i *Interceptor[T]) Pipe(dst stream.Stream[T], opts ...stream.PipeOption) stream.Stream[T] {
	if isNil(dst) {
		panic(ErrNilDestination)
	}

	var out stream.Stream[T]
	i.iso.traced(IsolationConnectSpan, func(tag func(tracez.Tag, string)) {
		tag(IsolationTagStage, dst.Name())

		switch {
		case i.iso.handler == nil:
			tag(IsolationTagOutcome, OutcomePassthrough)
			out = i.Stream.Pipe(dst, opts...)

		case IsTerminator(dst) || IsSentinel(dst):
			tag(IsolationTagOutcome, OutcomeBypassed)
			out = i.Stream.Pipe(dst, opts...)
			i.iso.bypassed(dst.Name())

		default:
			tag(IsolationTagOutcome, OutcomeWrapped)
			proxy := wrap(i.iso, dst)
			out = proxy
			if i.iso.propagate {
				out = intercept(i.iso, stream.Stream[T](proxy))
			}
			markIntercepted(dst)
			markIntercepted(proxy)
			i.iso.remember(dst)

			// The link and the marks live as long as the wrapper is attached.
			i.links = append(i.links, link[T]{dst: dst, proxy: proxy})
			proxy.onDetach = func() { i.unlink(proxy) }
			i.Stream.Pipe(proxy, opts...)
			i.iso.wrapped(dst.Name())
		}
	})
	return out
}

// Unpipe disconnects dst, or the wrapper standing in for it.
func (i *Interceptor[T]) Unpipe(dst stream.Stream[T]) {
	for n, l := range i.links {
		if identical(l.dst, dst) || identical(l.proxy, dst) || identical(unwrapInterceptor(dst), l.proxy) {
			i.links = append(i.links[:n], i.links[n+1:]...)
			i.Stream.Unpipe(l.proxy)
			return
		}
	}
	i.Stream.Unpipe(dst)
}

func (i *Interceptor[T]) unlink(proxy *Wrapper[T]) {
	for n, l := range i.links {
		if identical(l.proxy, proxy) {
			i.links = append(i.links[:n], i.links[n+1:]...)
			return
		}
	}
}

// Recover restores the decorated stream when it supports recovery.
func (i *Interceptor[T]) Recover() {
	if r, ok := i.Stream.(stream.Recoverer); ok {
		r.Recover()
	}
}

// Unwrap returns the decorated stream.
func (i *Interceptor[T]) Unwrap() stream.Stream[T] {
	return i.Stream
}

func (*Interceptor[T]) tags() tag {
	return tagIntercepted
}

func unwrapInterceptor[T any](s stream.Stream[T]) stream.Stream[T] {
	if i, ok := s.(*Interceptor[T]); ok {
		return i.Stream
	}
	return s
}
