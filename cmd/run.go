// cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/signin-e2e/internal/apiclient"
	"github.com/xkilldash9x/signin-e2e/internal/browser"
	"github.com/xkilldash9x/signin-e2e/internal/config"
	"github.com/xkilldash9x/signin-e2e/internal/endpoint"
	"github.com/xkilldash9x/signin-e2e/internal/fixture"
	"github.com/xkilldash9x/signin-e2e/internal/observability"
	"github.com/xkilldash9x/signin-e2e/internal/reporting"
	"github.com/xkilldash9x/signin-e2e/internal/scenario"
	"github.com/xkilldash9x/signin-e2e/internal/signin"
)

// ErrScenariosFailed is returned by run when at least one selected scenario
// did not pass. The report has already been written.
var ErrScenariosFailed = errors.New("scenarios failed")

// driverCloseTimeout bounds browser shutdown after the run.
const driverCloseTimeout = 15 * time.Second

// newDriver is swapped in tests.
var newDriver = browser.New

func newRunCmd() *cobra.Command {
	var (
		tags []string
		kind string
	)
	runCmd := &cobra.Command{
		Use:   "run [tags...]",
		Short: "Run the sign-in scenarios",
		Long: `Runs the selected scenarios against the active environment and writes a report.
Tags may be given as arguments or with --tag; "5", "T05" and "T_05" are equivalent.
The registered user is read from USER_EMAIL and USER_PASSWORD.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			k, err := scenario.ParseKind(kind)
			if err != nil {
				return err
			}
			filter := scenario.Filter{Tags: append(append([]string(nil), tags...), args...), Kind: k}
			return runSuite(cmd, cfg, filter)
		},
	}

	f := runCmd.Flags()
	f.StringSliceVarP(&tags, "tag", "t", nil, "scenario tag to run (repeatable)")
	f.StringVar(&kind, "kind", "all", "scenario kind to run: ui, api or all")
	f.String("env", "", "environment to run against")
	f.String("base-url", "", "override the app base URL of the active environment")
	f.String("api-url", "", "override the API base URL of the active environment")
	f.String("engine", config.EngineChromedp, "browser engine: chromedp or playwright")
	f.Bool("headless", true, "run the browser without a window")
	f.StringP("format", "f", reporting.FormatText, "report format: text, json, junit or sarif")
	f.StringP("output", "o", "stdout", "report output file")
	f.Bool("no-color", false, "disable colors in the text report")
	f.IntP("parallel", "j", 1, "number of API scenarios to run at once")
	f.Duration("step-timeout", scenario.DefaultStepTimeout, "time budget of each DOM assertion")
	f.String("fixtures", "", "YAML file overriding selectors, messages and styles")
	return runCmd
}

func runSuite(cmd *cobra.Command, cfg *config.Config, filter scenario.Filter) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()
	suite := signin.Suite()

	selected, err := filter.Select(suite)
	if err != nil {
		return err
	}
	fixtures, err := loadFixtures(cfg.Runner.FixturesFile, logger)
	if err != nil {
		return err
	}
	env, err := cfg.ActiveEnvironment()
	if err != nil {
		return err
	}
	registry, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	logger.Info("Running scenarios.",
		zap.String("environment", cfg.Environment),
		zap.String("base_url", env.BaseURL),
		zap.String("api_url", env.APIURL),
		zap.Int("selected", len(selected)),
	)

	opts := scenario.Options{
		API:               apiclient.New(apiclient.Options{Network: cfg.Network, RequestTimeout: cfg.Runner.RequestTimeout, Logger: logger}),
		Fixtures:          fixtures,
		Registry:          registry,
		Credentials:       scenario.Credentials{Email: cfg.Credentials.Email, Password: cfg.Credentials.Password},
		StepTimeout:       cfg.Runner.StepTimeout,
		RequestTimeout:    cfg.Runner.RequestTimeout,
		NavigationTimeout: cfg.Network.NavigationTimeout,
		Parallel:          cfg.Runner.Parallel,
		Logger:            logger,
		RunID:             uuid.New().String(),
	}

	if needsBrowser(selected) {
		driver, err := newDriver(ctx, browser.Options{Browser: cfg.Browser, Network: cfg.Network, Logger: logger})
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), driverCloseTimeout)
			defer cancel()
			if err := driver.Close(closeCtx); err != nil {
				logger.Warn("Failed to close browser.", zap.Error(err))
			}
		}()
		opts.Driver = driver
	}

	reporter, err := reporting.New(cfg.Report.Format, cfg.Report.Output, logger, reporting.Options{
		RunID:       opts.RunID,
		Suite:       suite.Name,
		Started:     time.Now(),
		ToolVersion: Version,
		NoColor:     cfg.Report.NoColor,
		Stdout:      cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}
	opts.Observer = func(res *scenario.Result) {
		if err := reporter.Write(res); err != nil {
			logger.Error("Failed to write result.", zap.String("scenario", res.Tag), zap.Error(err))
		}
	}

	report, runErr := scenario.NewRunner(opts).Run(ctx, suite, filter)
	if err := reporter.Close(); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if cause := context.Cause(ctx); cause != nil {
		return fmt.Errorf("run interrupted: %w", cause)
	}
	if passed, failed := report.Counts(); failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrScenariosFailed, failed, passed+failed)
	}
	return nil
}

func needsBrowser(selected []*scenario.Scenario) bool {
	for _, sc := range selected {
		if sc.Kind == scenario.KindUI {
			return true
		}
	}
	return false
}

func loadFixtures(path string, logger *zap.Logger) (*fixture.Page, error) {
	base := signin.DefaultFixtures()
	if path == "" {
		return base, nil
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	override, err := fixture.LoadFile(expanded)
	if err != nil {
		return nil, err
	}
	for _, key := range base.Unknown(override) {
		logger.Warn("Fixture override defines a key no scenario uses.", zap.String("file", expanded), zap.String("key", key))
	}
	return base.Merge(override)
}

func newRegistry(cfg *config.Config) (*endpoint.Registry, error) {
	envs := make(map[string]endpoint.Environment, len(cfg.Environments))
	for name, env := range cfg.Environments {
		envs[name] = endpoint.Environment{Name: name, BaseURL: env.BaseURL, APIURL: env.APIURL}
	}
	return endpoint.NewRegistry(cfg.Environment, envs, signin.Endpoints()...)
}
