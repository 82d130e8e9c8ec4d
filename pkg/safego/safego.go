package safego

import (
	"go.uber.org/zap"
)

// Go launches fn in a goroutine that survives panics. A panic is logged
// with the goroutine name and stack, then the goroutine exits instead of
// taking the process down.
//
//	safego.Go(logger, "ws-writer", func() { ... })
func Go(logger *zap.Logger, name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Goroutine panicked",
					zap.String("goroutine", name),
					zap.Any("panic", r),
					zap.Stack("stack"),
				)
			}
		}()
		fn()
	}()
}
