// internal/scenario/runner.go
package scenario

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/signin-e2e/internal/browser"
	"github.com/xkilldash9x/signin-e2e/internal/endpoint"
	"github.com/xkilldash9x/signin-e2e/internal/fixture"
)

// pageCloseTimeout bounds closing a page after its scenario finished.
const pageCloseTimeout = 10 * time.Second

// Options configure a Runner.
type Options struct {
	// Driver is required when any UI scenario is selected.
	Driver browser.Driver
	// API is required when any API scenario is selected.
	API         Requester
	Fixtures    *fixture.Page
	Registry    *endpoint.Registry
	Credentials Credentials

	StepTimeout       time.Duration
	RequestTimeout    time.Duration
	NavigationTimeout time.Duration
	PollInterval      time.Duration

	// Parallel is the number of API scenarios that may run at once. UI
	// scenarios always run one after another.
	Parallel int
	Logger   *zap.Logger
	// Observer is called once per finished scenario. Calls are serialized.
	Observer func(*Result)
	// RunID names the run in logs and reports; a uuid is generated when empty.
	RunID string
}

// Runner executes suites.
type Runner struct {
	opts   Options
	logger *zap.Logger

	observeMu sync.Mutex
}

// NewRunner creates a Runner.
func NewRunner(opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	return &Runner{opts: opts, logger: opts.Logger.Named("runner")}
}

// Run executes the scenarios of suite selected by f and returns the report.
// Results are in suite order. The error is only non-nil when the filter is
// invalid; scenario failures are in the report.
func (r *Runner) Run(ctx context.Context, suite Suite, f Filter) (*Report, error) {
	selected, err := f.Select(suite)
	if err != nil {
		return nil, err
	}

	runID := r.opts.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	report := &Report{
		RunID:   runID,
		Suite:   suite.Name,
		Started: time.Now(),
		Results: make([]*Result, len(selected)),
	}
	logger := r.logger.With(zap.String("run_id", report.RunID))
	logger.Info("Starting run.", zap.String("suite", suite.Name), zap.Int("scenarios", len(selected)))

	var g errgroup.Group
	g.SetLimit(r.opts.Parallel)
	for i, sc := range selected {
		res := newResult(sc)
		report.Results[i] = res
		if sc.Kind == KindAPI && r.opts.Parallel > 1 {
			g.Go(func() error {
				r.execute(ctx, logger, sc, res)
				return nil
			})
			continue
		}
		r.execute(ctx, logger, sc, res)
	}
	_ = g.Wait()

	report.Duration = time.Since(report.Started)
	passed, failed := report.Counts()
	logger.Info("Run finished.",
		zap.Int("passed", passed),
		zap.Int("failed", failed),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (r *Runner) execute(ctx context.Context, logger *zap.Logger, sc *Scenario, res *Result) {
	res.Started = time.Now()
	scLog := logger.With(zap.String("scenario", sc.Tag))
	err := r.runScenario(ctx, scLog, sc, res)
	res.Duration = time.Since(res.Started)

	if err != nil {
		if ferr := res.fail(err); ferr != nil {
			scLog.DPanic("Result transition failed.", zap.Error(ferr))
		}
		scLog.Warn("Scenario failed.", zap.Stringer("category", res.Category), zap.Error(err))
	} else {
		if aerr := res.State.advance(StatePassed); aerr != nil {
			scLog.DPanic("Result transition failed.", zap.Error(aerr))
		}
		scLog.Info("Scenario passed.", zap.Duration("duration", res.Duration))
	}

	if r.opts.Observer != nil {
		r.observeMu.Lock()
		r.opts.Observer(res)
		r.observeMu.Unlock()
	}
}

func (r *Runner) runScenario(ctx context.Context, logger *zap.Logger, sc *Scenario, res *Result) error {
	if ctx.Err() != nil {
		return &StepError{Scenario: sc.Tag, Index: -1, Err: fmt.Errorf("not started: %w", context.Cause(ctx))}
	}
	if err := res.State.advance(StateRunning); err != nil {
		return err
	}

	rt := &Runtime{
		Scenario:          sc,
		API:               r.opts.API,
		Fixtures:          r.opts.Fixtures,
		Registry:          r.opts.Registry,
		Credentials:       r.opts.Credentials,
		Logger:            logger,
		StepTimeout:       r.opts.StepTimeout,
		RequestTimeout:    r.opts.RequestTimeout,
		NavigationTimeout: r.opts.NavigationTimeout,
		PollInterval:      r.opts.PollInterval,
	}
	rt.init()

	if err := preflight(sc, rt); err != nil {
		return err
	}

	if sc.Kind == KindUI {
		if r.opts.Driver == nil {
			return &StepError{Scenario: sc.Tag, Index: -1, Err: configErr("scenario needs a browser but no driver is configured", nil)}
		}
		page, err := r.opts.Driver.NewPage(ctx)
		if err != nil {
			return &StepError{Scenario: sc.Tag, Index: -1, Err: fmt.Errorf("failed to open page: %w", err)}
		}
		rt.Page = page
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pageCloseTimeout)
			defer cancel()
			if err := page.Close(closeCtx); err != nil {
				logger.Warn("Failed to close page.", zap.Error(err))
			}
		}()
	}

	for i, step := range sc.Steps {
		if err := runStep(ctx, rt, step); err != nil {
			return &StepError{Scenario: sc.Tag, Index: i, Step: step.Describe(), Err: err}
		}
	}
	return nil
}

// preflight checks every reference of the scenario before anything runs.
func preflight(sc *Scenario, rt *Runtime) error {
	produced := make(map[string]bool)
	for i, step := range sc.Steps {
		fail := func(err error) error {
			var cfg *ConfigurationError
			if !errors.As(err, &cfg) {
				err = configErr("", err)
			}
			return &StepError{Scenario: sc.Tag, Index: i, Step: step.Describe(), Err: err}
		}
		if p, ok := step.(Preflighter); ok {
			if err := p.Preflight(rt); err != nil {
				return fail(err)
			}
		}
		if c, ok := step.(aliasConsumer); ok && !produced[c.consumesAlias()] {
			return fail(configErr(fmt.Sprintf("@%s is used before any step records it", c.consumesAlias()), nil))
		}
		if p, ok := step.(aliasProducer); ok {
			produced[p.producesAlias()] = true
		}
	}
	return nil
}

func runStep(ctx context.Context, rt *Runtime, step Step) error {
	budget := rt.StepTimeout
	if t, ok := step.(Timeouter); ok {
		if d := t.Timeout(rt); d > 0 {
			budget = d
		}
	}
	stepCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	start := time.Now()
	err := step.Run(stepCtx, rt)
	rt.Logger.Debug("Step finished.",
		zap.String("step", step.Describe()),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err),
	)
	if err != nil && ctx.Err() != nil {
		// The run was canceled; report that rather than what the step saw.
		return fmt.Errorf("%w: %v", context.Cause(ctx), err)
	}
	return deadlineErr(stepCtx, step.Describe(), err)
}
