// internal/scenario/poll.go
package scenario

import (
	"context"
	"errors"
	"time"

	"github.com/xkilldash9x/signin-e2e/internal/browser"
)

// probe reads the current value of an assertion subject. A read error means
// the subject is not observable yet and the probe is retried.
type probe func(ctx context.Context) (actual string, matched bool, err error)

// pollOutcome is what was last seen when polling stopped without a match.
type pollOutcome struct {
	actual  string
	seen    bool
	lastErr error
}

// poll runs p every interval until it matches or ctx is done.
func poll(ctx context.Context, interval time.Duration, p probe) (bool, pollOutcome) {
	var out pollOutcome
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		actual, matched, err := p(ctx)
		if err == nil && matched {
			return true, out
		}
		if ctx.Err() != nil {
			return false, out
		}
		if err != nil {
			out.lastErr = err
			if errors.Is(err, browser.ErrClosed) {
				return false, out
			}
		} else {
			out.actual, out.seen, out.lastErr = actual, true, nil
		}
		select {
		case <-ctx.Done():
			return false, out
		case <-ticker.C:
		}
	}
}

// failure turns a non-matching poll into the error the scenario reports. A
// subject that was never readable is a timeout; one that was read but never
// matched is an assertion failure carrying the last value.
func (o pollOutcome) failure(ctx context.Context, condition string, assertion *AssertionError) error {
	if errors.Is(o.lastErr, browser.ErrClosed) {
		return o.lastErr
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	if o.lastErr != nil || !o.seen {
		err := o.lastErr
		if err == nil {
			err = ctx.Err()
		}
		return &TimeoutError{Condition: condition, Err: err}
	}
	assertion.Actual = o.actual
	return assertion
}

// deadlineErr maps a step that ran out of time onto a TimeoutError.
func deadlineErr(ctx context.Context, condition string, err error) error {
	if err == nil {
		return nil
	}
	var (
		te *TimeoutError
		ae *AssertionError
		ce *ConfigurationError
	)
	if errors.As(err, &te) || errors.As(err, &ae) || errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Condition: condition, Err: err}
	}
	return err
}
