package stream

import "slices"

type pipe[T any] struct {
	dst           Stream[T]
	offs          []func()
	awaitingDrain bool
	closed        bool
}

// Pipe connects d to dst and returns dst.
//
// Every item d emits is written to dst; when dst reports backpressure d is
// paused until dst drains. When d ends, dst is ended too unless WithoutEnd is
// given. If dst fails, closes, or finishes, the connection is removed and d
// stops flowing into it. All listeners Pipe registers are removed with the
// connection.
func (d *Duplex[T]) Pipe(dst Stream[T], opts ...PipeOption) Stream[T] {
	cfg := pipeConfig{end: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &pipe[T]{dst: dst}
	cleanup := func() { d.unpipe(p) }
	p.offs = []func(){
		d.events.onData(func(item T) {
			if !dst.Write(item, nil) && !p.awaitingDrain {
				p.awaitingDrain = true
				d.Pause()
			}
		}),
		d.events.onSignal(&d.events.end, func() {
			cleanup()
			if cfg.end {
				dst.End()
			}
		}),
		dst.OnDrain(func() {
			if p.awaitingDrain {
				p.awaitingDrain = false
				d.Resume()
			}
		}),
		dst.OnError(func(error) { cleanup() }),
		dst.OnClose(cleanup),
		dst.OnFinish(cleanup),
	}
	d.pipes = append(d.pipes, p)
	d.Resume()
	return dst
}

// Unpipe removes the connection to dst, if any.
func (d *Duplex[T]) Unpipe(dst Stream[T]) {
	for _, p := range slices.Clone(d.pipes) {
		if p.dst == dst {
			d.unpipe(p)
		}
	}
}

func (d *Duplex[T]) unpipe(p *pipe[T]) {
	if p.closed {
		return
	}
	p.closed = true
	for _, off := range p.offs {
		off()
	}
	d.pipes = slices.DeleteFunc(d.pipes, func(q *pipe[T]) bool { return q == p })
	if len(d.pipes) == 0 && d.events.data.len() == 0 {
		d.Pause()
	}
}
