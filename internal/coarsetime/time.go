// Package coarsetime is a clock refreshed every 50ms by a background
// goroutine. Expirations are whole seconds, so reading it is accurate enough
// and avoids a time.Now call per set.
package coarsetime

import (
	"sync/atomic"
	"time"
)

const Resolution = 50 * time.Millisecond

var now atomic.Pointer[time.Time]

func init() {
	t := time.Now()
	now.Store(&t)

	ticker := time.NewTicker(Resolution)
	go func() {
		for t := range ticker.C {
			now.Store(&t)
		}
	}()
}

// Now returns the current time, at most Resolution behind time.Now.
func Now() time.Time {
	return *now.Load()
}
