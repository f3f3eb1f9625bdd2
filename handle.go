package plumbz

import (
	"errors"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/zoobzio/plumbz/stream"
)

// Handler receives every failure an isolated stage absorbs, once per
// failure, with the original failure value.
type Handler func(err error)

// dedupeLimit bounds the failures LogHandler remembers.
const dedupeLimit = 1024

// LogHandler returns the default Handler. It logs each failure once at error
// level; a failure value reported again is skipped. Failures are compared by
// identity, so two distinct failures with the same message are both logged.
// Error values of non-comparable types are always logged.
//
// Each Sentinel created without WithHandler gets its own LogHandler, so
// deduplication covers the lifetime of one pipeline.
func LogHandler(logger *zap.Logger) Handler {
	if logger == nil {
		logger = zap.L()
	}
	var mu sync.Mutex
	seen := make(map[error]struct{})

	return func(err error) {
		if err == nil {
			return
		}
		if reflect.TypeOf(err).Comparable() {
			mu.Lock()
			_, dup := seen[err]
			if !dup {
				if len(seen) >= dedupeLimit {
					clear(seen)
				}
				seen[err] = struct{}{}
			}
			mu.Unlock()
			if dup {
				return
			}
		}

		fields := []zap.Field{zap.Error(err)}
		var staged interface{ StageName() stream.Name }
		if errors.As(err, &staged) {
			fields = append(fields, zap.String("stage", staged.StageName()))
		}
		logger.Error("stage failure absorbed", fields...)
	}
}
