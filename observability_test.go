package plumbz

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/tracez"

	"github.com/zoobzio/plumbz/stream"
)

func TestObservability(t *testing.T) {
	t.Run("Metrics", func(t *testing.T) {
		sentinel := Handle[int](func(error) {})
		defer sentinel.Close()

		if sentinel.Metrics() == nil {
			t.Fatal("expected metrics registry to be initialized")
		}

		sentinel.Pipe(failEven("bad")).Pipe(stream.Collect[int]("sink"))
		src := stream.From("numbers", count(6)...)
		src.Pipe(sentinel)
		src.Start()

		wrapped := sentinel.Metrics().Counter(IsolationWrappedTotal).Value()
		if wrapped != 2 {
			t.Errorf("expected 2 wrapped stages, got %f", wrapped)
		}
		absorbed := sentinel.Metrics().Counter(IsolationAbsorbedTotal).Value()
		if absorbed != 3 {
			t.Errorf("expected 3 absorbed failures, got %f", absorbed)
		}
		// 6 items into the failing stage, 3 survivors into the sink.
		items := sentinel.Metrics().Counter(IsolationItemsTotal).Value()
		if items != 9 {
			t.Errorf("expected 9 forwarded items, got %f", items)
		}
		bypassed := sentinel.Metrics().Counter(IsolationBypassedTotal).Value()
		if bypassed != 0 {
			t.Errorf("expected no bypassed connections, got %f", bypassed)
		}
		active := sentinel.Metrics().Gauge(IsolationWrappersActive).Value()
		if active != 0 {
			t.Errorf("expected 0 active wrappers after completion, got %f", active)
		}
	})

	t.Run("Active Wrappers", func(t *testing.T) {
		sentinel := Handle[int](func(error) {})
		defer sentinel.Close()

		sentinel.Pipe(stream.PassThrough[int]("a")).Pipe(stream.PassThrough[int]("b"))
		active := sentinel.Metrics().Gauge(IsolationWrappersActive).Value()
		if active != 2 {
			t.Errorf("expected 2 active wrappers, got %f", active)
		}
	})

	t.Run("Spans", func(t *testing.T) {
		sentinel := Handle[int](func(error) {})
		defer sentinel.Close()

		if sentinel.Tracer() == nil {
			t.Fatal("expected tracer to be initialized")
		}

		var spans []tracez.Span
		var spanMu sync.Mutex
		sentinel.Tracer().OnSpanComplete(func(span tracez.Span) {
			spanMu.Lock()
			spans = append(spans, span)
			spanMu.Unlock()
		})

		sentinel.Pipe(failEven("bad")).Pipe(Stop[int]())
		src := stream.From("numbers", count(4)...)
		src.Pipe(sentinel)
		src.Start()

		spanMu.Lock()
		defer spanMu.Unlock()

		var connects, absorbs int
		outcomes := map[string]int{}
		for _, span := range spans {
			switch span.Name {
			case IsolationConnectSpan:
				connects++
				outcomes[span.Tags[IsolationTagOutcome]]++
			case IsolationAbsorbSpan:
				absorbs++
				if span.Tags[IsolationTagStage] != "bad" {
					t.Errorf("expected absorb span for stage bad, got %q", span.Tags[IsolationTagStage])
				}
				if _, ok := span.Tags[IsolationTagError]; !ok {
					t.Error("expected absorb span to carry the error")
				}
			}
		}
		if connects != 2 {
			t.Errorf("expected 2 connect spans, got %d", connects)
		}
		if outcomes[OutcomeWrapped] != 1 || outcomes[OutcomeBypassed] != 1 {
			t.Errorf("expected one wrapped and one bypassed connection, got %v", outcomes)
		}
		if absorbs != 2 {
			t.Errorf("expected 2 absorb spans, got %d", absorbs)
		}
	})

	t.Run("Hooks", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		sentinel := New[int](WithHandler(func(error) {}), WithClock(clock), WithName("ingest"))
		defer sentinel.Close()

		var mu sync.Mutex
		var wrapped, absorbed, bypassed []IsolationEvent
		record := func(events *[]IsolationEvent) func(context.Context, IsolationEvent) error {
			return func(_ context.Context, event IsolationEvent) error {
				mu.Lock()
				*events = append(*events, event)
				mu.Unlock()
				return nil
			}
		}
		if err := sentinel.OnWrapped(record(&wrapped)); err != nil {
			t.Fatalf("failed to register hook: %v", err)
		}
		if err := sentinel.OnAbsorbed(record(&absorbed)); err != nil {
			t.Fatalf("failed to register hook: %v", err)
		}
		if err := sentinel.OnBypassed(record(&bypassed)); err != nil {
			t.Fatalf("failed to register hook: %v", err)
		}

		sentinel.Pipe(failEven("bad")).Pipe(Stop[int]())
		src := stream.From("numbers", count(6)...)
		src.Pipe(sentinel)
		src.Start()

		// Wait for async hooks to fire
		time.Sleep(50 * time.Millisecond)

		mu.Lock()
		defer mu.Unlock()

		if len(wrapped) != 1 {
			t.Fatalf("expected 1 wrapped event, got %d", len(wrapped))
		}
		if wrapped[0].Stage != "bad" || wrapped[0].Name != "ingest" || !wrapped[0].Propagate {
			t.Errorf("unexpected wrapped event: %+v", wrapped[0])
		}
		if len(bypassed) != 1 || bypassed[0].Stage != "terminator" {
			t.Errorf("expected 1 bypassed event for the terminator, got %+v", bypassed)
		}
		if len(absorbed) != 3 {
			t.Fatalf("expected 3 absorbed events, got %d", len(absorbed))
		}
		for _, event := range absorbed {
			if event.Error == nil {
				t.Error("expected absorbed event to carry the failure")
			}
			if !event.Timestamp.Equal(clock.Now()) {
				t.Errorf("expected timestamp from the injected clock, got %v", event.Timestamp)
			}
		}
	})
}
