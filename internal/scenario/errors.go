// internal/scenario/errors.go
package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Category is the failure class of a scenario.
type Category int

const (
	CategoryNone Category = iota
	CategoryConfiguration
	CategoryAssertion
	CategoryShape
	CategoryTimeout
	CategoryCanceled
	CategoryError
)

func (c Category) String() string {
	switch c {
	case CategoryNone:
		return "none"
	case CategoryConfiguration:
		return "configuration"
	case CategoryAssertion:
		return "assertion"
	case CategoryShape:
		return "protocol_shape"
	case CategoryTimeout:
		return "timeout"
	case CategoryCanceled:
		return "canceled"
	default:
		return "error"
	}
}

// ConfigurationError is a defect in fixtures, endpoints or credentials. It is
// reported before the scenario touches the browser or the network.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return "configuration error: " + e.Reason
	}
	if e.Reason == "" {
		return "configuration error: " + e.Err.Error()
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// AssertionError is an observed value that did not match the expected one.
type AssertionError struct {
	Subject string
	// Relation defaults to "be".
	Relation string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	rel := e.Relation
	if rel == "" {
		rel = "be"
	}
	return fmt.Sprintf("expected %s to %s %q, got %q", e.Subject, rel, e.Expected, e.Actual)
}

// ShapeError is a response whose structure is not the expected one. It is also
// an *AssertionError for errors.As.
type ShapeError struct {
	AssertionError
	Missing []string
	Extra   []string
	Diff    string
}

func (e *ShapeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "unexpected shape of %s", e.Subject)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, "; missing %s", strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		fmt.Fprintf(&b, "; unexpected %s", strings.Join(e.Extra, ", "))
	}
	if len(e.Missing) == 0 && len(e.Extra) == 0 && e.Actual != "" {
		fmt.Fprintf(&b, ": %s", e.Actual)
	}
	if e.Diff != "" {
		fmt.Fprintf(&b, "\n%s", e.Diff)
	}
	return b.String()
}

func (e *ShapeError) Unwrap() error { return &e.AssertionError }

// TimeoutError is a condition that was not observed in time.
type TimeoutError struct {
	Condition string
	Err       error
}

func (e *TimeoutError) Error() string {
	if e.Err == nil {
		return "timed out waiting for " + e.Condition
	}
	return fmt.Sprintf("timed out waiting for %s: %v", e.Condition, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// StepError names the scenario and step a failure happened in.
type StepError struct {
	Scenario string
	Index    int
	Step     string
	Err      error
}

func (e *StepError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %v", e.Scenario, e.Err)
	}
	return fmt.Sprintf("%s step %d (%s): %v", e.Scenario, e.Index+1, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Classify maps an error onto its Category.
func Classify(err error) Category {
	if err == nil {
		return CategoryNone
	}
	var (
		cfgErr   *ConfigurationError
		shapeErr *ShapeError
		assErr   *AssertionError
		toErr    *TimeoutError
	)
	switch {
	case errors.As(err, &cfgErr):
		return CategoryConfiguration
	case errors.As(err, &shapeErr):
		return CategoryShape
	case errors.As(err, &assErr):
		return CategoryAssertion
	case errors.As(err, &toErr):
		return CategoryTimeout
	case errors.Is(err, context.Canceled):
		return CategoryCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	default:
		return CategoryError
	}
}

func configErr(reason string, err error) error {
	return &ConfigurationError{Reason: reason, Err: err}
}
