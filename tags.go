package plumbz

import (
	"reflect"
	"sync"
)

type tag uint8

const (
	tagSentinel tag = 1 << iota
	tagIntercepted
	tagTerminator
)

// tagged is implemented by the stages this package owns.
type tagged interface {
	tags() tag
}

type markable interface {
	markIntercepted()
}

// registry records streams this package does not own that have been marked
// intercepted.
type registry struct {
	entries map[any]struct{}
	mu      sync.RWMutex
}

var intercepted = &registry{entries: make(map[any]struct{})}

func (r *registry) mark(s any) {
	if !hashable(s) {
		return
	}
	r.mu.Lock()
	r.entries[s] = struct{}{}
	r.mu.Unlock()
}

func (r *registry) has(s any) bool {
	if !hashable(s) {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[s]
	return ok
}

func (r *registry) forget(s any) {
	if !hashable(s) {
		return
	}
	r.mu.Lock()
	delete(r.entries, s)
	r.mu.Unlock()
}

func hasTag(s any, t tag) bool {
	if v, ok := s.(tagged); ok {
		return v.tags()&t != 0
	}
	return false
}

// IsSentinel reports whether s is a Sentinel created by New or Handle.
func IsSentinel(s any) bool {
	return hasTag(s, tagSentinel)
}

// IsTerminator reports whether s is a Terminator created by Stop.
func IsTerminator(s any) bool {
	return hasTag(s, tagTerminator)
}

// IsIntercepted reports whether s has isolation-aware connections or has
// been connected to through one.
func IsIntercepted(s any) bool {
	if _, ok := s.(tagged); ok {
		return hasTag(s, tagIntercepted)
	}
	return intercepted.has(s)
}

// Forget drops the intercepted mark recorded for a stream this package does
// not own. Sentinel.Close forgets every stream its connections marked.
func Forget(s any) {
	intercepted.forget(s)
}

func markIntercepted(s any) {
	if m, ok := s.(markable); ok {
		m.markIntercepted()
		return
	}
	intercepted.mark(s)
}

func hashable(s any) bool {
	t := reflect.TypeOf(s)
	return t != nil && t.Comparable()
}

// identical compares two stream references without panicking on
// non-comparable dynamic types.
func identical(a, b any) bool {
	ta := reflect.TypeOf(a)
	if ta == nil || ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

func isNil(s any) bool {
	if s == nil {
		return true
	}
	v := reflect.ValueOf(s)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	default:
		return false
	}
}
