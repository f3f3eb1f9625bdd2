package stream

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestPipe(t *testing.T) {
	t.Run("Items Flow In Order", func(t *testing.T) {
		src := From("numbers", 1, 2, 3, 4, 5)
		sink := Collect[int]("sink")
		src.Pipe(Transform("double", func(_ context.Context, n int) int { return n * 2 })).Pipe(sink)
		src.Start()

		if got := sink.Items(); !slices.Equal(got, []int{2, 4, 6, 8, 10}) {
			t.Errorf("expected [2 4 6 8 10], got %v", got)
		}
		if done, err := Settled[int](sink); !done || err != nil {
			t.Errorf("expected sink to complete cleanly, got done=%v err=%v", done, err)
		}
	})

	t.Run("Pipe Returns Destination", func(t *testing.T) {
		src := From[int]("numbers")
		dst := PassThrough[int]("dst")
		if got := src.Pipe(dst); got != Stream[int](dst) {
			t.Errorf("expected Pipe to return its destination")
		}
	})

	t.Run("Events Fire In Order", func(t *testing.T) {
		src := From("numbers", 1)
		pt := PassThrough[int]("pt")
		var events []Event
		pt.OnEnd(func() { events = append(events, EventEnd) })
		pt.OnFinish(func() { events = append(events, EventFinish) })
		pt.OnClose(func() { events = append(events, EventClose) })
		pt.OnData(func(int) { events = append(events, EventData) })
		src.Pipe(pt)
		src.Start()

		want := []Event{EventData, EventEnd, EventFinish, EventClose}
		if !slices.Equal(events, want) {
			t.Errorf("expected %v, got %v", want, events)
		}
	})

	t.Run("WithoutEnd Keeps Destination Open", func(t *testing.T) {
		src := From("numbers", 1, 2)
		sink := Collect[int]("sink")
		src.Pipe(sink, WithoutEnd())
		src.Start()

		if !src.Ended() {
			t.Fatal("expected source to end")
		}
		if done, _ := Settled[int](sink); done {
			t.Error("expected sink to stay open")
		}
		if sink.Len() != 2 {
			t.Errorf("expected 2 items, got %d", sink.Len())
		}
		sink.End()
		if done, _ := Settled[int](sink); !done {
			t.Error("expected sink to complete after End")
		}
	})

	t.Run("Unpipe Stops Delivery", func(t *testing.T) {
		pt := PassThrough[int]("pt")
		sink := Collect[int]("sink")
		pt.Pipe(sink)
		pt.Write(1, nil)
		pt.Unpipe(sink)
		pt.Write(2, nil)

		if got := sink.Items(); !slices.Equal(got, []int{1}) {
			t.Errorf("expected [1], got %v", got)
		}
		if n := pt.ListenerCount(EventData); n != 0 {
			t.Errorf("expected no data listeners after unpipe, got %d", n)
		}
	})

	t.Run("Listeners Removed On Completion", func(t *testing.T) {
		src := From("numbers", 1, 2, 3)
		mid := PassThrough[int]("mid")
		sink := Collect[int]("sink")
		src.Pipe(mid).Pipe(sink)
		src.Start()

		for _, s := range []Stream[int]{src, mid, sink} {
			for _, ev := range []Event{EventData, EventEnd, EventError, EventDrain, EventFinish, EventClose} {
				if n := s.ListenerCount(ev); n != 0 {
					t.Errorf("%s: expected 0 %s listeners, got %d", s.Name(), ev, n)
				}
			}
		}
	})
}

func TestBackpressure(t *testing.T) {
	t.Run("Paused Consumer Halts Source", func(t *testing.T) {
		items := make([]int, 100)
		for i := range items {
			items[i] = i + 1
		}
		src := From("numbers", items...)
		pt := PassThrough[int]("pt", WithHighWaterMark(2))
		pt.Pause()
		src.Pipe(pt)

		var got []int
		src.Start()
		if src.Ended() {
			t.Fatal("expected source to be held back by backpressure")
		}

		pt.OnData(func(n int) { got = append(got, n) })
		if len(got) != 0 {
			t.Fatalf("expected explicit pause to survive a data listener, got %d items", len(got))
		}
		pt.Resume()

		if !slices.Equal(got, items) {
			t.Errorf("expected all 100 items in order, got %d items", len(got))
		}
		if !src.Ended() {
			t.Error("expected source to end after consumer resumed")
		}
		if !pt.Ended() {
			t.Error("expected passthrough to end")
		}
	})

	t.Run("Drain Follows Full Queue", func(t *testing.T) {
		var pending []func()
		d := New("manual", Config[int]{
			HighWaterMark: 2,
			Transform: func(item int, push func(int) bool, done func(error)) {
				pending = append(pending, func() {
					push(item)
					done(nil)
				})
			},
		})
		d.OnData(func(int) {})
		drains := 0
		d.OnDrain(func() { drains++ })

		if !d.Write(1, nil) {
			t.Error("expected first write to be accepted")
		}
		if d.Write(2, nil) {
			t.Error("expected second write to signal backpressure")
		}

		pending[0]()
		if drains != 0 {
			t.Errorf("expected no drain while a write is pending, got %d", drains)
		}
		pending[1]()
		if drains != 1 {
			t.Errorf("expected 1 drain, got %d", drains)
		}
	})

	t.Run("Acks Arrive In Write Order", func(t *testing.T) {
		d := PassThrough[int]("pt")
		d.OnData(func(int) {})
		var acks []int
		for i := 1; i <= 5; i++ {
			n := i
			d.Write(n, func(err error) {
				if err != nil {
					t.Errorf("unexpected ack error: %v", err)
				}
				acks = append(acks, n)
			})
		}
		if !slices.Equal(acks, []int{1, 2, 3, 4, 5}) {
			t.Errorf("expected acks [1 2 3 4 5], got %v", acks)
		}
	})
}

func TestFailure(t *testing.T) {
	errBoom := errors.New("boom")
	failOnTwo := func(_ context.Context, n int) (int, error) {
		if n == 2 {
			return 0, errBoom
		}
		return n, nil
	}

	t.Run("Failure Halts Pipeline", func(t *testing.T) {
		src := From("numbers", 1, 2, 3, 4)
		bad := Apply("bad", failOnTwo)
		sink := Collect[int]("sink")
		src.Pipe(bad).Pipe(sink)
		src.Start()

		if got := sink.Items(); !slices.Equal(got, []int{1}) {
			t.Errorf("expected [1], got %v", got)
		}
		if !errors.Is(bad.Err(), errBoom) {
			t.Errorf("expected stage error wrapping boom, got %v", bad.Err())
		}
		var stageErr *StageError[int]
		if !errors.As(bad.Err(), &stageErr) {
			t.Fatalf("expected *StageError[int], got %T", bad.Err())
		}
		if stageErr.Stage != "bad" || stageErr.Item != 2 {
			t.Errorf("expected stage bad with item 2, got %s with %d", stageErr.Stage, stageErr.Item)
		}
		if done, _ := Settled[int](sink); done {
			t.Error("expected sink to never complete")
		}
		if n := src.ListenerCount(EventData); n != 0 {
			t.Errorf("expected source to be unpiped from failed stage, got %d data listeners", n)
		}
	})

	t.Run("Failure Emits Error Then Close", func(t *testing.T) {
		bad := Apply("bad", failOnTwo)
		var events []Event
		bad.OnError(func(error) { events = append(events, EventError) })
		bad.OnClose(func() { events = append(events, EventClose) })
		var ackErr error
		bad.Write(2, func(err error) { ackErr = err })

		if !slices.Equal(events, []Event{EventError, EventClose}) {
			t.Errorf("expected [error close], got %v", events)
		}
		if !errors.Is(ackErr, errBoom) {
			t.Errorf("expected failed write to be acknowledged with boom, got %v", ackErr)
		}
	})

	t.Run("Write After Destroy", func(t *testing.T) {
		bad := Apply("bad", failOnTwo)
		bad.Write(2, nil)

		var ackErr error
		if bad.Write(3, func(err error) { ackErr = err }) {
			t.Error("expected write to destroyed stage to return false")
		}
		if !errors.Is(ackErr, ErrDestroyed) {
			t.Errorf("expected ErrDestroyed, got %v", ackErr)
		}
	})

	t.Run("Recover Inside Error Listener", func(t *testing.T) {
		bad := Apply("bad", failOnTwo)
		var failures int
		bad.OnError(func(error) {
			failures++
			bad.Recover()
		})
		var got []int
		bad.OnData(func(n int) { got = append(got, n) })
		for i := 1; i <= 3; i++ {
			bad.Write(i, nil)
		}

		if failures != 1 {
			t.Errorf("expected 1 failure, got %d", failures)
		}
		if bad.Err() != nil {
			t.Errorf("expected recovered stage to clear its error, got %v", bad.Err())
		}
		if !slices.Equal(got, []int{1, 3}) {
			t.Errorf("expected [1 3], got %v", got)
		}
	})

	t.Run("Failed Destination Is Unpiped", func(t *testing.T) {
		bad := Apply("bad", failOnTwo)
		pt := PassThrough[int]("pt")
		pt.Pipe(bad)
		pt.Write(2, nil)

		if n := pt.ListenerCount(EventData); n != 0 {
			t.Errorf("expected 0 data listeners, got %d", n)
		}
		if n := bad.ListenerCount(EventError); n != 0 {
			t.Errorf("expected pipe listeners removed from failed stage, got %d", n)
		}
	})

	t.Run("Destroy Without Error", func(t *testing.T) {
		pt := PassThrough[int]("pt")
		failures := 0
		pt.OnError(func(error) { failures++ })
		pt.Destroy(nil)

		if done, err := Settled[int](pt); !done || err != nil {
			t.Errorf("expected clean close, got done=%v err=%v", done, err)
		}
		if failures != 0 {
			t.Errorf("expected no error events, got %d", failures)
		}
	})
}

func TestEnd(t *testing.T) {
	t.Run("Write After End", func(t *testing.T) {
		pt := PassThrough[int]("pt")
		pt.End()

		var ackErr error
		pt.Write(1, func(err error) { ackErr = err })
		if !errors.Is(ackErr, ErrWriteAfterEnd) {
			t.Errorf("expected ErrWriteAfterEnd, got %v", ackErr)
		}
	})

	t.Run("End Is Emitted Only Once Consumed", func(t *testing.T) {
		pt := PassThrough[int]("pt")
		pt.Write(1, nil)
		pt.End()
		if pt.Ended() {
			t.Fatal("expected end to wait for buffered data to be consumed")
		}

		var got []int
		pt.OnData(func(n int) { got = append(got, n) })
		if !pt.Ended() {
			t.Error("expected end once buffer drained")
		}
		if !slices.Equal(got, []int{1}) {
			t.Errorf("expected [1], got %v", got)
		}
	})

	t.Run("Flush Pushes Final Items", func(t *testing.T) {
		var total int
		sum := New("sum", Config[int]{
			Transform: func(item int, _ func(int) bool, done func(error)) {
				total += item
				done(nil)
			},
			Flush: func(push func(int) bool, done func(error)) {
				push(total)
				done(nil)
			},
		})
		src := From("numbers", 1, 2, 3, 4)
		sink := Collect[int]("sink")
		src.Pipe(sum).Pipe(sink)
		src.Start()

		if got := sink.Items(); !slices.Equal(got, []int{10}) {
			t.Errorf("expected [10], got %v", got)
		}
	})
}

func TestFinished(t *testing.T) {
	t.Run("Returns Nil On Completion", func(t *testing.T) {
		src := From("numbers", 1, 2)
		sink := Collect[int]("sink")
		src.Pipe(sink)
		src.Start()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := Finished[int](ctx, sink); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Returns Failure", func(t *testing.T) {
		errBoom := errors.New("boom")
		bad := Effect("bad", func(context.Context, int) error { return errBoom })
		bad.Write(1, nil)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := Finished[int](ctx, bad); !errors.Is(err, errBoom) {
			t.Errorf("expected boom, got %v", err)
		}
	})

	t.Run("Respects Context", func(t *testing.T) {
		pt := PassThrough[int]("pt")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		if err := Finished[int](ctx, pt); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})
}
