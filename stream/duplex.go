package stream

import "context"

// DefaultHighWaterMark is the number of items a stage buffers on each side
// before it signals backpressure.
const DefaultHighWaterMark = 16

// Config describes the behavior of a Duplex stage.
//
// Transform is called once per written item, never concurrently with itself.
// It may push any number of items and must call done exactly once; a non-nil
// error destroys the stage. Flush runs after End once every written item has
// been acknowledged, and may push final items before calling done. Read is
// called whenever a consumer wants more data and the readable buffer has room;
// sources use it to produce items on demand.
type Config[T any] struct {
	Context       context.Context
	Transform     func(item T, push func(T) bool, done func(error))
	Flush         func(push func(T) bool, done func(error))
	Read          func()
	HighWaterMark int
}

type flowState uint8

const (
	flowUnset flowState = iota
	flowFlowing
	flowPaused
)

type write[T any] struct {
	item T
	ack  func(error)
}

// Duplex is the reference Stream implementation: a stage with a writable
// queue feeding a transform and a readable buffer fed by it.
//
//nolint:govet // fieldalignment: grouped by side for readability
type Duplex[T any] struct {
	ctx       context.Context
	transform func(T, func(T) bool, func(error))
	flush     func(func(T) bool, func(error))
	read      func()
	err       error
	done      chan struct{}
	held      *write[T]
	name      Name
	buffer    []T
	queue     []write[T]
	pipes     []*pipe[T]
	events    emitter[T]
	highWater int
	flow      flowState

	// writable side
	writing    bool
	processing bool
	needDrain  bool
	ending     bool
	flushing   bool
	finished   bool

	// readable side
	pumping    bool
	reading    bool
	ended      bool
	endEmitted bool

	destroyed bool
	closed    bool
}

// New creates a Duplex stage from cfg. A nil Transform passes items through
// unchanged.
func New[T any](name Name, cfg Config[T]) *Duplex[T] {
	d := &Duplex[T]{
		ctx:       cfg.Context,
		transform: cfg.Transform,
		flush:     cfg.Flush,
		read:      cfg.Read,
		name:      name,
		highWater: cfg.HighWaterMark,
		done:      make(chan struct{}),
	}
	if d.ctx == nil {
		d.ctx = context.Background()
	}
	if d.transform == nil {
		d.transform = passThrough[T]
	}
	if d.flush == nil {
		d.flush = func(_ func(T) bool, done func(error)) { done(nil) }
	}
	if d.highWater < 1 {
		d.highWater = DefaultHighWaterMark
	}
	return d
}

func passThrough[T any](item T, push func(T) bool, done func(error)) {
	push(item)
	done(nil)
}

func noopAck(error) {}

// Name returns the stage name.
func (d *Duplex[T]) Name() Name {
	return d.name
}

// Context returns the context handed to the stage's functions.
func (d *Duplex[T]) Context() context.Context {
	return d.ctx
}

// Write queues item for the transform. It returns false when the writable
// queue has reached the high-water mark; EventDrain follows once it empties.
// Writes to a destroyed or ending stage are acknowledged with ErrDestroyed or
// ErrWriteAfterEnd.
func (d *Duplex[T]) Write(item T, ack func(error)) bool {
	if ack == nil {
		ack = noopAck
	}
	if d.destroyed {
		ack(ErrDestroyed)
		return false
	}
	if d.ending {
		ack(ErrWriteAfterEnd)
		return false
	}
	d.queue = append(d.queue, write[T]{item: item, ack: ack})
	d.process()
	if d.destroyed {
		return false
	}
	if d.pending() >= d.highWater {
		d.needDrain = true
		return false
	}
	return true
}

func (d *Duplex[T]) pending() int {
	n := len(d.queue)
	if d.writing {
		n++
	}
	return n
}

func (d *Duplex[T]) process() {
	if d.processing {
		return
	}
	d.processing = true
	for !d.writing && len(d.queue) > 0 && !d.destroyed {
		w := d.queue[0]
		d.queue[0] = write[T]{}
		d.queue = d.queue[1:]
		d.writing = true
		d.transform(w.item, d.Push, d.completion(w))
	}
	d.processing = false

	if d.destroyed {
		d.abandon()
		return
	}
	if d.writing || len(d.queue) > 0 {
		return
	}
	if d.needDrain {
		d.needDrain = false
		d.events.emitSignal(&d.events.drain)
	}
	if d.ending && !d.flushing {
		d.runFlush()
	}
}

func (d *Duplex[T]) completion(w write[T]) func(error) {
	called := false
	return func(err error) {
		if called {
			return
		}
		called = true
		if err != nil {
			d.writing = false
			d.Destroy(err)
			w.ack(err)
			d.process()
			return
		}
		// Withhold the acknowledgement until a consumer makes room.
		if len(d.buffer) >= d.highWater {
			d.held = &w
			return
		}
		d.writing = false
		w.ack(nil)
		d.process()
	}
}

// abandon fails every write the stage will no longer process.
func (d *Duplex[T]) abandon() {
	if w := d.held; w != nil {
		d.held = nil
		d.writing = false
		w.ack(ErrDestroyed)
	}
	queue := d.queue
	d.queue = nil
	for _, w := range queue {
		w.ack(ErrDestroyed)
	}
}

// End signals that nothing more will be written. The stage flushes once every
// queued item has been processed, then ends its readable side and emits
// EventFinish.
func (d *Duplex[T]) End() {
	if d.ending || d.destroyed {
		return
	}
	d.ending = true
	if !d.writing && len(d.queue) == 0 && !d.processing {
		d.runFlush()
	}
}

func (d *Duplex[T]) runFlush() {
	d.flushing = true
	called := false
	d.flush(d.Push, func(err error) {
		if called {
			return
		}
		called = true
		if err != nil {
			d.Destroy(err)
			return
		}
		d.pushEnd()
		d.finished = true
		d.events.emitSignal(&d.events.finish)
		d.maybeClose()
	})
}

// Push adds item to the readable side. It returns false once the readable
// buffer has reached the high-water mark, in which case the producer should
// stop until Read is called again.
func (d *Duplex[T]) Push(item T) bool {
	if d.ended || d.destroyed {
		return false
	}
	d.buffer = append(d.buffer, item)
	d.pump()
	return len(d.buffer) < d.highWater
}

func (d *Duplex[T]) pushEnd() {
	if d.ended {
		return
	}
	d.ended = true
	d.pump()
}

// pump emits buffered items while the stage is flowing.
func (d *Duplex[T]) pump() {
	if d.pumping {
		return
	}
	d.pumping = true
	for d.flow == flowFlowing && len(d.buffer) > 0 && !d.destroyed {
		item := d.buffer[0]
		var zero T
		d.buffer[0] = zero
		d.buffer = d.buffer[1:]
		d.events.emitData(item)
	}
	d.pumping = false

	if d.flow == flowFlowing && len(d.buffer) < d.highWater && !d.destroyed {
		d.release()
	}
	d.maybeEnd()
}

// release hands a withheld acknowledgement back and asks the producer for more.
func (d *Duplex[T]) release() {
	if w := d.held; w != nil {
		d.held = nil
		d.writing = false
		w.ack(nil)
		d.process()
	}
	if d.read != nil && !d.reading && !d.ended {
		d.reading = true
		d.read()
		d.reading = false
	}
}

func (d *Duplex[T]) maybeEnd() {
	if !d.ended || d.endEmitted || d.pumping || d.destroyed {
		return
	}
	if len(d.buffer) > 0 || d.flow != flowFlowing {
		return
	}
	d.endEmitted = true
	d.events.emitSignal(&d.events.end)
	d.maybeClose()
}

func (d *Duplex[T]) maybeClose() {
	if d.endEmitted && d.finished {
		d.emitClose()
	}
}

func (d *Duplex[T]) emitClose() {
	if d.closed {
		return
	}
	d.closed = true
	d.events.emitSignal(&d.events.close)
	close(d.done)
}

// Destroy tears the stage down. A non-nil err is emitted as EventError first;
// if no error listener recovers the stage, pending writes are failed with
// ErrDestroyed and EventClose follows.
func (d *Duplex[T]) Destroy(err error) {
	if d.destroyed || d.closed {
		return
	}
	d.destroyed = true
	d.err = err
	if err != nil {
		d.events.emitError(err)
	}
	if !d.destroyed {
		// An error listener recovered the stage.
		return
	}
	d.abandon()
	d.emitClose()
}

// Recover returns a destroyed stage to a usable state.
func (d *Duplex[T]) Recover() {
	if !d.destroyed {
		return
	}
	d.destroyed = false
	d.err = nil
	if d.closed {
		d.closed = false
		d.done = make(chan struct{})
	}
}

// Pause stops emitting data; pushed items are buffered until Resume.
func (d *Duplex[T]) Pause() {
	d.flow = flowPaused
}

// Resume switches the stage to flowing mode and emits buffered items.
func (d *Duplex[T]) Resume() {
	d.flow = flowFlowing
	d.pump()
}

// NotifyDrain emits EventDrain to writers waiting for capacity.
func (d *Duplex[T]) NotifyDrain() {
	d.events.emitSignal(&d.events.drain)
}

// OnData registers fn for every emitted item. Registering a data listener
// resumes the stage unless it was explicitly paused.
func (d *Duplex[T]) OnData(fn func(T)) func() {
	off := d.events.onData(fn)
	if d.flow != flowPaused {
		d.Resume()
	}
	return off
}

// OnEnd registers fn for the end of the readable side.
func (d *Duplex[T]) OnEnd(fn func()) func() {
	return d.events.onSignal(&d.events.end, fn)
}

// OnError registers fn for failures.
func (d *Duplex[T]) OnError(fn func(error)) func() {
	return d.events.onError(fn)
}

// OnDrain registers fn for the writable queue emptying after backpressure.
func (d *Duplex[T]) OnDrain(fn func()) func() {
	return d.events.onSignal(&d.events.drain, fn)
}

// OnFinish registers fn for the completion of the writable side.
func (d *Duplex[T]) OnFinish(fn func()) func() {
	return d.events.onSignal(&d.events.finish, fn)
}

// OnClose registers fn for stage teardown.
func (d *Duplex[T]) OnClose(fn func()) func() {
	return d.events.onSignal(&d.events.close, fn)
}

// ListenerCount returns the number of listeners registered for event.
func (d *Duplex[T]) ListenerCount(event Event) int {
	return d.events.count(event)
}

// Err returns the failure that destroyed the stage, if any.
func (d *Duplex[T]) Err() error {
	return d.err
}

// Done is closed once the stage has closed, either after completing or after
// being destroyed.
func (d *Duplex[T]) Done() <-chan struct{} {
	return d.done
}

// Ended reports whether the readable side has emitted EventEnd.
func (d *Duplex[T]) Ended() bool {
	return d.endEmitted
}
