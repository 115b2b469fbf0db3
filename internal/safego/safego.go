package safego

import (
	"log"
	"runtime/debug"
)

// Go runs fn on a new goroutine. A panic is written to the logger with its
// stack before re-panicking, so crashes in background goroutines are never
// lost when stderr is redirected or rotated away.
func Go(logger *log.Logger, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Printf("PANIC: %v\n%s", r, debug.Stack())
				panic(r)
			}
		}()
		fn()
	}()
}
