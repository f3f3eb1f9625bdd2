package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/zoobzio/plumbz"
	"github.com/zoobzio/plumbz/stream"
	plumbztesting "github.com/zoobzio/plumbz/testing"
)

// TestPanicCascade validates how panics move through an isolated pipeline.
// Stage panics become ordinary failures; handler panics are not recovered.
func TestPanicCascade(t *testing.T) {
	t.Run("Stage panic is absorbed", func(t *testing.T) {
		errs := plumbztesting.NewErrorCollector()
		sentinel := plumbz.Handle[int](errs.Handler())
		defer sentinel.Close()

		boom := stream.Apply("boom", func(_ context.Context, n int) (int, error) {
			if n == 2 {
				panic(fmt.Sprintf("cannot handle %d", n))
			}
			return n, nil
		})
		sink := stream.Collect[int]("sink")
		sentinel.Pipe(boom).Pipe(sink)
		plumbztesting.Drive[int](sentinel, 1, 2, 3)

		plumbztesting.AssertFailures(t, errs, 1)
		if !errors.Is(errs.Errors()[0], stream.ErrPanic) {
			t.Errorf("expected ErrPanic, got %v", errs.Errors()[0])
		}
		if got := sink.Items(); len(got) != 2 || got[0] != 1 || got[1] != 3 {
			t.Errorf("expected [1 3], got %v", got)
		}
	})

	t.Run("Nested panics through multiple stages", func(t *testing.T) {
		errs := plumbztesting.NewErrorCollector()
		sentinel := plumbz.Handle[int](errs.Handler())
		defer sentinel.Close()

		panicky := func(name string, on int) *stream.Duplex[int] {
			return stream.Transform(name, func(_ context.Context, n int) int {
				if n == on {
					panic(name)
				}
				return n
			})
		}
		sink := stream.Collect[int]("sink")
		sentinel.Pipe(panicky("first", 1)).Pipe(panicky("second", 2)).Pipe(panicky("third", 3)).Pipe(sink)
		plumbztesting.Drive[int](sentinel, 1, 2, 3, 4)

		plumbztesting.AssertFailures(t, errs, 3)
		for i, name := range []string{"first", "second", "third"} {
			var stageErr *stream.StageError[int]
			if !errors.As(errs.Errors()[i], &stageErr) || stageErr.Stage != name {
				t.Errorf("expected failure %d from %s, got %v", i, name, errs.Errors()[i])
			}
		}
		if got := sink.Items(); len(got) != 1 || got[0] != 4 {
			t.Errorf("expected [4], got %v", got)
		}
	})

	t.Run("Handler panic propagates to the producer", func(t *testing.T) {
		sentinel := plumbz.Handle[int](func(err error) {
			if strings.Contains(err.Error(), "bad input") {
				panic("handler cannot handle this error type")
			}
		})
		defer sentinel.Close()

		failing := stream.Apply("failing", func(_ context.Context, _ int) (int, error) {
			return 0, errors.New("bad input")
		})
		sentinel.Pipe(failing).Pipe(plumbz.Stop[int]())

		defer func() {
			r := recover()
			if r == nil {
				t.Fatal("expected handler panic to reach the producer")
			}
			if !strings.Contains(fmt.Sprint(r), "handler cannot handle") {
				t.Errorf("unexpected panic: %v", r)
			}
		}()
		plumbztesting.Drive[int](sentinel, 42)
	})
}
