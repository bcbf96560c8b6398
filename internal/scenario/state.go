// internal/scenario/state.go
package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// State is the lifecycle position of one scenario in a run.
type State int

const (
	StatePending State = iota
	StateRunning
	StatePassed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StatePassed:
		return "passed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StatePassed || s == StateFailed
}

// advance moves s to next. Pending may go to Running or straight to Failed
// (canceled before start); Running ends in Passed or Failed.
func (s *State) advance(next State) error {
	ok := false
	switch *s {
	case StatePending:
		ok = next == StateRunning || next == StateFailed
	case StateRunning:
		ok = next == StatePassed || next == StateFailed
	}
	if !ok {
		return fmt.Errorf("illegal scenario transition %s -> %s", *s, next)
	}
	*s = next
	return nil
}

// Kind says what a scenario needs to run.
type Kind int

const (
	// KindAny only appears in a Filter.
	KindAny Kind = iota
	KindUI
	KindAPI
)

func (k Kind) String() string {
	switch k {
	case KindUI:
		return "ui"
	case KindAPI:
		return "api"
	default:
		return "any"
	}
}

// ParseKind accepts "ui" and "api"; "", "any" and "all" select every kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "any", "all":
		return KindAny, nil
	case "ui", "UI":
		return KindUI, nil
	case "api", "API":
		return KindAPI, nil
	}
	return KindAny, fmt.Errorf("unknown scenario kind %q (want ui, api or any)", s)
}

// Step is one action or assertion of a scenario.
type Step interface {
	Describe() string
	Run(ctx context.Context, rt *Runtime) error
}

// Preflighter is implemented by steps that reference configuration which can
// be checked before the scenario starts.
type Preflighter interface {
	Preflight(rt *Runtime) error
}

// Timeouter is implemented by steps whose budget is not the step timeout.
type Timeouter interface {
	Timeout(rt *Runtime) time.Duration
}

// Scenario is a named, ordered list of steps.
type Scenario struct {
	Tag         string
	Description string
	Kind        Kind
	Steps       []Step
	// Gaps lists assertions that are documented but deliberately not checked.
	Gaps []string
}

// Suite is an ordered collection of scenarios.
type Suite struct {
	Name      string
	Scenarios []*Scenario
}

// Result is the outcome of one scenario.
type Result struct {
	Tag         string
	Description string
	Kind        Kind
	State       State
	// Step and StepIndex name the failing step; StepIndex is -1 when the
	// scenario failed outside a step.
	Step      string
	StepIndex int
	Err       error
	Category  Category
	Steps     int
	Started   time.Time
	Duration  time.Duration
	Gaps      []string
}

func newResult(sc *Scenario) *Result {
	return &Result{
		Tag:         sc.Tag,
		Description: sc.Description,
		Kind:        sc.Kind,
		State:       StatePending,
		StepIndex:   -1,
		Steps:       len(sc.Steps),
		Gaps:        append([]string(nil), sc.Gaps...),
	}
}

// fail records err and moves the result to Failed.
func (r *Result) fail(err error) error {
	r.Err = err
	r.Category = Classify(err)
	var se *StepError
	if errors.As(err, &se) && se.Index >= 0 {
		r.Step = se.Step
		r.StepIndex = se.Index
	}
	return r.State.advance(StateFailed)
}

// Report is the outcome of one run.
type Report struct {
	RunID    string
	Suite    string
	Started  time.Time
	Duration time.Duration
	Results  []*Result
}

// Passed reports whether every result passed. An empty report has passed.
func (r *Report) Passed() bool {
	for _, res := range r.Results {
		if res.State != StatePassed {
			return false
		}
	}
	return true
}

// Counts returns the number of passed and failed results.
func (r *Report) Counts() (passed, failed int) {
	for _, res := range r.Results {
		switch res.State {
		case StatePassed:
			passed++
		case StateFailed:
			failed++
		}
	}
	return passed, failed
}
