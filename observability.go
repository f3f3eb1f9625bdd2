package plumbz

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"

	"github.com/zoobzio/plumbz/stream"
)

// Observability constants for isolation.
const (
	// Metrics.
	IsolationWrappedTotal   = metricz.Key("isolation.wrapped.total")
	IsolationBypassedTotal  = metricz.Key("isolation.bypassed.total")
	IsolationAbsorbedTotal  = metricz.Key("isolation.absorbed.total")
	IsolationItemsTotal     = metricz.Key("isolation.items.total")
	IsolationWrappersActive = metricz.Key("isolation.wrappers.active")

	// Spans.
	IsolationConnectSpan = tracez.Key("isolation.connect")
	IsolationAbsorbSpan  = tracez.Key("isolation.absorb")

	// Tags.
	IsolationTagStage   = tracez.Tag("isolation.stage")
	IsolationTagOutcome = tracez.Tag("isolation.outcome")
	IsolationTagError   = tracez.Tag("isolation.error")

	// Hook event keys.
	IsolationEventWrapped  = hookz.Key("isolation.wrapped")
	IsolationEventAbsorbed = hookz.Key("isolation.absorbed")
	IsolationEventBypassed = hookz.Key("isolation.bypassed")
)

// Connection outcomes recorded on isolation.connect spans.
const (
	OutcomeWrapped     = "wrapped"
	OutcomeBypassed    = "bypassed"
	OutcomePassthrough = "passthrough"
)

// IsolationEvent represents an isolation lifecycle event.
// This is emitted via hookz when a stage is wrapped, when a connection skips
// wrapping, and after a failure has been absorbed.
type IsolationEvent struct {
	Name      stream.Name   // Sentinel name
	Stage     stream.Name   // Stage connected to, or the stage that failed
	Error     error         // Absorbed failure (absorbed events only)
	Propagate bool          // Whether isolation extends past the stage
	Duration  time.Duration // Time spent in the handler (absorbed events only)
	Timestamp time.Time     // When the event occurred
}

// isolation is the state shared by every interceptor and wrapper chained from
// one entry point. Observability fields are nil for standalone Wrap and
// Intercept calls.
type isolation struct {
	clock     clockz.Clock
	handler   Handler
	metrics   *metricz.Registry
	tracer    *tracez.Tracer
	hooks     *hookz.Hooks[IsolationEvent]
	name      stream.Name
	marked    []any
	mu        sync.Mutex
	active    int
	propagate bool
}

func newIsolation(name stream.Name, handler Handler, propagate bool) *isolation {
	return &isolation{
		name:      name,
		handler:   handler,
		propagate: propagate,
		clock:     clockz.RealClock,
	}
}

func (iso *isolation) observe() {
	metrics := metricz.New()
	metrics.Counter(IsolationWrappedTotal)
	metrics.Counter(IsolationBypassedTotal)
	metrics.Counter(IsolationAbsorbedTotal)
	metrics.Counter(IsolationItemsTotal)
	metrics.Gauge(IsolationWrappersActive)

	iso.metrics = metrics
	iso.tracer = tracez.New()
	iso.hooks = hookz.New[IsolationEvent]()
}

func (iso *isolation) count(key metricz.Key) {
	if iso.metrics != nil {
		iso.metrics.Counter(key).Inc()
	}
}

func (iso *isolation) emit(key hookz.Key, event IsolationEvent) {
	if iso.hooks != nil {
		_ = iso.hooks.Emit(context.Background(), key, event) //nolint:errcheck
	}
}

// traced runs fn inside a span named key. fn receives a function that tags
// the span.
func (iso *isolation) traced(key tracez.Key, fn func(tag func(tracez.Tag, string))) {
	if iso.tracer == nil {
		fn(func(tracez.Tag, string) {})
		return
	}
	_, span := iso.tracer.StartSpan(context.Background(), key)
	defer span.Finish()
	fn(func(k tracez.Tag, v string) {
		span.SetTag(k, v)
	})
}

// attach and detach track wrappers still listening to their target.
func (iso *isolation) attach() {
	iso.mu.Lock()
	iso.active++
	active := iso.active
	iso.mu.Unlock()
	if iso.metrics != nil {
		iso.metrics.Gauge(IsolationWrappersActive).Set(float64(active))
	}
}

func (iso *isolation) detach() {
	iso.mu.Lock()
	iso.active--
	active := iso.active
	iso.mu.Unlock()
	if iso.metrics != nil {
		iso.metrics.Gauge(IsolationWrappersActive).Set(float64(active))
	}
}

// remember records a foreign stream marked intercepted so forget can release
// it.
func (iso *isolation) remember(s any) {
	if _, ok := s.(tagged); ok {
		return
	}
	iso.mu.Lock()
	iso.marked = append(iso.marked, s)
	iso.mu.Unlock()
}

func (iso *isolation) forget() {
	iso.mu.Lock()
	marked := iso.marked
	iso.marked = nil
	iso.mu.Unlock()
	for _, s := range marked {
		Forget(s)
	}
}

// release forgets s once the wrapper isolating it has detached.
func (iso *isolation) release(s any) {
	if _, ok := s.(tagged); ok {
		return
	}
	iso.mu.Lock()
	for n, m := range iso.marked {
		if identical(m, s) {
			iso.marked = append(iso.marked[:n], iso.marked[n+1:]...)
			break
		}
	}
	iso.mu.Unlock()
	Forget(s)
}

func (iso *isolation) wrapped(stage stream.Name) {
	iso.count(IsolationWrappedTotal)
	iso.emit(IsolationEventWrapped, IsolationEvent{
		Name:      iso.name,
		Stage:     stage,
		Propagate: iso.propagate,
		Timestamp: iso.clock.Now(),
	})
}

func (iso *isolation) bypassed(stage stream.Name) {
	iso.count(IsolationBypassedTotal)
	iso.emit(IsolationEventBypassed, IsolationEvent{
		Name:      iso.name,
		Stage:     stage,
		Timestamp: iso.clock.Now(),
	})
}

// absorb hands a stage failure to the handler.
func (iso *isolation) absorb(stage stream.Name, err error) {
	iso.count(IsolationAbsorbedTotal)
	start := iso.clock.Now()
	iso.traced(IsolationAbsorbSpan, func(tag func(tracez.Tag, string)) {
		tag(IsolationTagStage, stage)
		if err != nil {
			tag(IsolationTagError, err.Error())
		}
		iso.handler(err)
	})
	iso.emit(IsolationEventAbsorbed, IsolationEvent{
		Name:      iso.name,
		Stage:     stage,
		Error:     err,
		Propagate: iso.propagate,
		Duration:  iso.clock.Since(start),
		Timestamp: iso.clock.Now(),
	})
}

func (iso *isolation) close() error {
	iso.forget()
	if iso.tracer != nil {
		iso.tracer.Close()
	}
	if iso.hooks != nil {
		iso.hooks.Close()
	}
	return nil
}
