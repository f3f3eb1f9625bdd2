// Package plumbz provides transparent error isolation for chained streaming pipelines.
//
// # Overview
//
// A pipeline built from push-based stages (see package stream) halts as soon
// as any stage fails: the failing stage is destroyed and disconnected from its
// upstream source, and nothing downstream of it ever sees another item. plumbz
// lets a single instrumentation point, the Sentinel, be inserted once at the
// head of a pipeline. Every stage connected after it, transitively, routes its
// failures to a caller-supplied Handler instead of tearing the pipeline down.
// Ordering, backpressure, and completion behave exactly as they would without
// the Sentinel.
//
// # Core Concepts
//
//   - Sentinel: a pass-through stage created by New or Handle. Its Pipe method
//     is isolation-aware.
//   - Wrapper: the proxy stage interposed before every real downstream stage.
//     It relays data, drain, and end, and absorbs failures.
//   - Interceptor: the decorator that makes Pipe isolation-aware. Pipe returns
//     an intercepted proxy, so chained connections stay isolated.
//   - Terminator: a pass-through stage created by Stop that opts the rest of a
//     branch out of isolation.
//
// # Usage Example
//
//	sentinel := plumbz.Handle[Order](func(err error) {
//	    log.Printf("order dropped: %v", err)
//	})
//
//	sentinel.
//	    Pipe(stream.Apply("validate", validateOrder)).
//	    Pipe(stream.Apply("price", priceOrder)).
//	    Pipe(stream.Effect("store", storeOrder))
//
//	orders.Pipe(sentinel)
//	orders.Start()
//
// A failure in validate, price, or store is passed to the handler once; the
// failed order produces no output and the next order is processed normally.
//
// # Handlers
//
// New without WithHandler installs LogHandler, which logs every distinct
// failure once through zap. WithoutIsolation disables isolation entirely: the
// Sentinel still tags itself but connects stages unmodified, so failures behave
// exactly as in an uninstrumented pipeline.
//
// # Propagation
//
// By default the interceptor is reinstalled on every proxy it returns, so
// isolation extends to each stage connected further down the chain.
// WithPropagation(false) isolates only the first downstream connection.
// Connecting a Terminator or another Sentinel stops propagation: the
// destination is connected as-is and returned.
//
// # Observability
//
// Sentinels expose metrics, traces, and lifecycle hooks:
//
// Metrics:
//   - isolation.wrapped.total: Counter of stages wrapped
//   - isolation.bypassed.total: Counter of connections to terminators and sentinels
//   - isolation.absorbed.total: Counter of absorbed failures
//   - isolation.items.total: Counter of items forwarded through wrappers
//   - isolation.wrappers.active: Gauge of wrappers still attached to their stage
//
// Traces:
//   - isolation.connect: Span for each isolation-aware connection
//   - isolation.absorb: Span for each absorbed failure, covering the handler
//
// Events (via hooks):
//   - isolation.wrapped: Fired when a stage is wrapped
//   - isolation.absorbed: Fired after a failure reached the handler
//   - isolation.bypassed: Fired when a connection skips wrapping
//
// # Concurrency
//
// Like the streams they instrument, Sentinels and Wrappers are driven from a
// single goroutine. The Handler is called synchronously on that goroutine.
// Hook handlers run asynchronously.
package plumbz
