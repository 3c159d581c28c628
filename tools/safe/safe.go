package safe

import (
	"OnlineGate/logger"
)

// Go starts a new goroutine that recovers from panic, so a misbehaving
// background task (stats write, relay publish) cannot crash the process.
func Go(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[safe.Go] panic recovered: %v", r)
			}
		}()
		f()
	}()
}
