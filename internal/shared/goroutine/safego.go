// Package goroutine launches goroutines that log panics instead of crashing
// the process.
package goroutine

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/orris-inc/subsync/internal/shared/logger"
)

// SafeGo runs fn on a new goroutine with ctx. A panic is recovered and logged
// together with fields. The returned channel is closed once fn has returned
// or its panic has been logged.
func SafeGo(ctx context.Context, log logger.Interface, name string, fn func(ctx context.Context), fields ...any) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				kv := append([]any{
					"goroutine", name,
					"panic", fmt.Sprintf("%v", r),
					"stack", string(debug.Stack()),
				}, fields...)
				log.Errorw("goroutine panicked", kv...)
			}
		}()
		fn(ctx)
	}()
	return done
}
