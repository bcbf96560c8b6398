// internal/browser/cdp/context.go
package cdp

import (
	"context"
	"errors"
	"time"
)

// CombineContext returns a context derived from primary that is also canceled
// when secondary is. Values come from primary only, which is where chromedp
// keeps its target; secondary usually just carries the caller's deadline.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	if d, ok := secondary.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		combined, cancelDeadline = context.WithDeadline(combined, d)
		inner := cancel
		cancel = func() { cancelDeadline(); inner() }
	}
	go func() {
		select {
		case <-secondary.Done():
			// A passed deadline is reported by combined's own timer.
			if !errors.Is(secondary.Err(), context.DeadlineExceeded) {
				cancel()
			}
		case <-combined.Done():
		}
	}()
	return combined, cancel
}

// valueOnlyContext keeps the parent's values but drops its deadline and
// cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                     { return nil }
func (valueOnlyContext) Err() error                                { return nil }

// Detach returns a context that carries ctx's values but outlives it. Body
// fetches use it so a finished step does not cut them short.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
