// Package testing provides test utilities and helpers for plumbz-based pipelines.
//
// This package includes mock stages, failure collectors, assertion helpers, and
// chaos stages to make testing isolated pipelines easier.
//
// Example usage:
//
//	func TestMyPipeline(t *testing.T) {
//		errs := testing.NewErrorCollector()
//		mock := testing.NewMockStage[int](t, "validate").
//			FailWhen(func(n int) bool { return n < 0 }, errNegative)
//		sink := stream.Collect[int]("sink")
//
//		sentinel := plumbz.Handle[int](errs.Handler())
//		sentinel.Pipe(mock).Pipe(sink)
//		testing.Drive[int](sentinel, 1, -2, 3)
//
//		testing.AssertProcessed(t, mock, 3)
//		testing.AssertFailures(t, errs, 1)
//	}
package testing

import (
	"crypto/rand"
	"errors"
	"fmt"
	mathrand "math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/plumbz"
	"github.com/zoobzio/plumbz/stream"
)

// MockStage provides a configurable stage that records every item written
// to it. It passes items through unchanged unless configured to fail.
type MockStage[T any] struct { //nolint:govet // fieldalignment: Test helper struct optimized for functionality over memory efficiency
	*stream.Duplex[T]
	t           *testing.T
	name        string
	callCount   int64
	lastInput   T
	failErr     error
	failWhen    func(T) bool
	mu          sync.RWMutex
	callHistory []MockCall[T]
	maxHistory  int
}

// MockCall represents a single item written to the mock stage.
type MockCall[T any] struct {
	Input     T
	Timestamp time.Time
	Failed    bool
}

// NewMockStage creates a new mock stage for testing.
// The stage tracks all items and provides configurable failures.
func NewMockStage[T any](t *testing.T, name string) *MockStage[T] {
	m := &MockStage[T]{
		t:          t,
		name:       name,
		maxHistory: 100, // Keep last 100 calls by default
	}
	m.Duplex = stream.New(name, stream.Config[T]{Transform: m.process})
	return m
}

// WithFailure configures the mock to fail every item with err.
func (m *MockStage[T]) WithFailure(err error) *MockStage[T] {
	return m.FailWhen(func(T) bool { return true }, err)
}

// FailWhen configures the mock to fail items matching predicate with err.
func (m *MockStage[T]) FailWhen(predicate func(T) bool, err error) *MockStage[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWhen = predicate
	m.failErr = err
	return m
}

// WithHistorySize configures how many calls to keep in history.
// Set to 0 to disable history tracking.
func (m *MockStage[T]) WithHistorySize(size int) *MockStage[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxHistory = size
	if size == 0 {
		m.callHistory = nil
	} else if len(m.callHistory) > size {
		// Trim history to new size
		m.callHistory = m.callHistory[len(m.callHistory)-size:]
	}
	return m
}

func (m *MockStage[T]) process(item T, push func(T) bool, done func(error)) {
	atomic.AddInt64(&m.callCount, 1)

	m.mu.Lock()
	m.lastInput = item
	failed := m.failWhen != nil && m.failWhen(item)
	if m.maxHistory > 0 {
		m.callHistory = append(m.callHistory, MockCall[T]{
			Input:     item,
			Timestamp: time.Now(),
			Failed:    failed,
		})
		if len(m.callHistory) > m.maxHistory {
			m.callHistory = m.callHistory[1:] // Remove oldest
		}
	}
	failErr := m.failErr
	m.mu.Unlock()

	if failed {
		if failErr == nil {
			failErr = errors.New("mock stage failure")
		}
		done(fmt.Errorf("%s: %w", m.name, failErr))
		return
	}
	push(item)
	done(nil)
}

// CallCount returns the number of items written to the stage.
func (m *MockStage[T]) CallCount() int {
	return int(atomic.LoadInt64(&m.callCount))
}

// LastInput returns the most recent item.
func (m *MockStage[T]) LastInput() T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastInput
}

// CallHistory returns a copy of all recorded calls.
// Returns empty slice if history tracking is disabled.
func (m *MockStage[T]) CallHistory() []MockCall[T] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.maxHistory == 0 {
		return nil
	}
	history := make([]MockCall[T], len(m.callHistory))
	copy(history, m.callHistory)
	return history
}

// Reset clears all call tracking.
func (m *MockStage[T]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	atomic.StoreInt64(&m.callCount, 0)
	m.lastInput = *new(T)
	m.callHistory = nil
}

// ErrorCollector records the failures a Sentinel absorbs.
type ErrorCollector struct {
	mu   sync.Mutex
	errs []error
}

// NewErrorCollector creates an empty ErrorCollector.
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{}
}

// Handler returns a plumbz.Handler that records into the collector.
func (c *ErrorCollector) Handler() plumbz.Handler {
	return func(err error) {
		c.mu.Lock()
		c.errs = append(c.errs, err)
		c.mu.Unlock()
	}
}

// Errors returns a copy of the recorded failures in the order they arrived.
func (c *ErrorCollector) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	errs := make([]error, len(c.errs))
	copy(errs, c.errs)
	return errs
}

// Len returns the number of recorded failures.
func (c *ErrorCollector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs)
}

// Drive writes items into head from a started source and returns the source.
func Drive[T any](head stream.Stream[T], items ...T) *stream.Source[T] {
	src := stream.From("drive", items...)
	src.Pipe(head)
	src.Start()
	return src
}

// Assertion Helpers

// AssertProcessed verifies that a mock stage received exactly n items.
func AssertProcessed[T any](t *testing.T, mock *MockStage[T], expectedCalls int) {
	t.Helper()
	actualCalls := mock.CallCount()
	if actualCalls != expectedCalls {
		t.Errorf("expected mock stage %s to receive %d items, but received %d",
			mock.name, expectedCalls, actualCalls)
	}
}

// AssertNotProcessed verifies that a mock stage never received an item.
func AssertNotProcessed[T any](t *testing.T, mock *MockStage[T]) {
	t.Helper()
	AssertProcessed(t, mock, 0)
}

// AssertProcessedWith verifies that a mock stage last received a specific item.
func AssertProcessedWith[T comparable](t *testing.T, mock *MockStage[T], expectedInput T) {
	t.Helper()
	if mock.CallCount() == 0 {
		t.Errorf("expected mock stage %s to receive %v, but it received nothing",
			mock.name, expectedInput)
		return
	}

	actualInput := mock.LastInput()
	if actualInput != expectedInput {
		t.Errorf("expected mock stage %s to receive %v, but received %v",
			mock.name, expectedInput, actualInput)
	}
}

// AssertFailures verifies that a collector recorded exactly n failures.
func AssertFailures(t *testing.T, c *ErrorCollector, expected int) {
	t.Helper()
	if n := c.Len(); n != expected {
		t.Errorf("expected %d absorbed failures, got %d", expected, n)
	}
}

// AssertNoListeners verifies that nothing is still listening to s.
func AssertNoListeners[T any](t *testing.T, s stream.Stream[T]) {
	t.Helper()
	events := []stream.Event{
		stream.EventData, stream.EventEnd, stream.EventError,
		stream.EventDrain, stream.EventFinish, stream.EventClose,
	}
	for _, ev := range events {
		if n := s.ListenerCount(ev); n != 0 {
			t.Errorf("expected no %s listeners on %s, got %d", ev, s.Name(), n)
		}
	}
}

// AssertIntercepted verifies that s is intercepted.
func AssertIntercepted(t *testing.T, s any) {
	t.Helper()
	if !plumbz.IsIntercepted(s) {
		t.Errorf("expected %T to be intercepted", s)
	}
}

// AssertNotIntercepted verifies that s is not intercepted.
func AssertNotIntercepted(t *testing.T, s any) {
	t.Helper()
	if plumbz.IsIntercepted(s) {
		t.Errorf("expected %T not to be intercepted", s)
	}
}

// ChaosStage fails items at random, reproducibly for a given seed.
type ChaosStage[T any] struct { //nolint:govet // fieldalignment: Test helper struct optimized for functionality over memory efficiency
	*stream.Duplex[T]
	failureRate float64
	rng         *mathrand.Rand
	mu          sync.Mutex
	totalCalls  int64
	failedCalls int64
}

// ChaosConfig holds configuration for chaos testing.
type ChaosConfig struct {
	FailureRate float64 // Probability of failing an item (0.0 to 1.0)
	Seed        int64   // Random seed for reproducible chaos (0 for random seed)
}

// ErrChaos is the failure a ChaosStage injects.
var ErrChaos = errors.New("chaos stage induced failure")

// NewChaosStage creates a pass-through stage that fails items at random.
func NewChaosStage[T any](name string, config ChaosConfig) *ChaosStage[T] {
	seed := config.Seed
	if seed == 0 {
		// Use crypto/rand for better randomness
		var seedBytes [8]byte
		if _, err := rand.Read(seedBytes[:]); err != nil {
			// Fallback to time-based seed if crypto/rand fails
			seed = time.Now().UnixNano()
		} else {
			seed = int64(seedBytes[0])<<56 | int64(seedBytes[1])<<48 | int64(seedBytes[2])<<40 | int64(seedBytes[3])<<32 |
				int64(seedBytes[4])<<24 | int64(seedBytes[5])<<16 | int64(seedBytes[6])<<8 | int64(seedBytes[7])
		}
	}

	c := &ChaosStage[T]{
		failureRate: config.FailureRate,
		rng:         mathrand.New(mathrand.NewSource(seed)), //nolint:gosec // G404: Test utility uses weak RNG for deterministic chaos scenarios
	}
	c.Duplex = stream.New(name, stream.Config[T]{Transform: c.process})
	return c
}

func (c *ChaosStage[T]) process(item T, push func(T) bool, done func(error)) {
	atomic.AddInt64(&c.totalCalls, 1)

	c.mu.Lock()
	injectFailure := c.rng.Float64() < c.failureRate
	c.mu.Unlock()

	if injectFailure {
		atomic.AddInt64(&c.failedCalls, 1)
		done(ErrChaos)
		return
	}
	push(item)
	done(nil)
}

// Stats returns statistics about chaos injection.
func (c *ChaosStage[T]) Stats() ChaosStats {
	return ChaosStats{
		TotalCalls:  atomic.LoadInt64(&c.totalCalls),
		FailedCalls: atomic.LoadInt64(&c.failedCalls),
	}
}

// ChaosStats holds statistics about chaos injection.
type ChaosStats struct {
	TotalCalls  int64
	FailedCalls int64
}

// FailureRate returns the actual failure rate observed.
func (s ChaosStats) FailureRate() float64 {
	if s.TotalCalls == 0 {
		return 0
	}
	return float64(s.FailedCalls) / float64(s.TotalCalls)
}

// String returns a human-readable representation of the stats.
func (s ChaosStats) String() string {
	return fmt.Sprintf("ChaosStats{Total: %d, Failed: %d (%.1f%%)}",
		s.TotalCalls, s.FailedCalls, s.FailureRate()*100)
}

// Helper Functions

// WaitForCalls waits for a mock stage to receive at least n items,
// with a timeout. Returns true if the expected calls were reached.
func WaitForCalls[T any](mock *MockStage[T], expectedCalls int, timeout time.Duration) bool {
	start := time.Now()
	for time.Since(start) < timeout {
		if mock.CallCount() >= expectedCalls {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// ParallelTest runs a test function in parallel with multiple goroutines.
// Each goroutine must build its own pipeline; streams are not safe for
// concurrent use.
func ParallelTest(t *testing.T, goroutines int, testFunc func(int)) {
	t.Helper()

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			testFunc(id)
		}(i)
	}

	wg.Wait()
}
