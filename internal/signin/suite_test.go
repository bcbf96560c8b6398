// internal/signin/suite_test.go
package signin

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/signin-e2e/internal/apiclient"
	"github.com/xkilldash9x/signin-e2e/internal/browser"
	"github.com/xkilldash9x/signin-e2e/internal/browser/cdp"
	"github.com/xkilldash9x/signin-e2e/internal/config"
	"github.com/xkilldash9x/signin-e2e/internal/scenario"
)

func TestSuiteShape(t *testing.T) {
	suite := Suite()
	assert.Equal(t, SuiteName, suite.Name)
	require.Len(t, suite.Scenarios, 13)

	var ui, api int
	seen := make(map[string]bool)
	for i, sc := range suite.Scenarios {
		want := fmt.Sprintf("T_%02d", i+1)
		assert.Equal(t, want, sc.Tag, "scenarios are declared in tag order")
		assert.False(t, seen[sc.Tag], "duplicate tag %s", sc.Tag)
		seen[sc.Tag] = true
		assert.NotEmpty(t, sc.Description, sc.Tag)
		require.NotEmpty(t, sc.Steps, sc.Tag)

		switch sc.Kind {
		case scenario.KindUI:
			ui++
			assert.Equal(t, "visit "+EndpointSignin, sc.Steps[0].Describe(), "%s starts on the sign-in page", sc.Tag)
		case scenario.KindAPI:
			api++
			assert.True(t, strings.HasPrefix(sc.Steps[0].Describe(), "POST "+EndpointOAuthToken), sc.Tag)
		default:
			t.Errorf("%s has kind %v", sc.Tag, sc.Kind)
		}
	}
	assert.Equal(t, 7, ui)
	assert.Equal(t, 6, api)

	for _, tag := range []string{"T_02", "T_10", "T_11"} {
		assert.NotEmpty(t, find(t, suite, tag).Gaps, "%s documents what it leaves unchecked", tag)
	}
	assert.Empty(t, find(t, suite, "T_08").Gaps)
}

func describeAll(sc *scenario.Scenario) []string {
	out := make([]string, len(sc.Steps))
	for i, st := range sc.Steps {
		out[i] = st.Describe()
	}
	return out
}

func indexOf(steps []string, want string) int {
	for i, s := range steps {
		if s == want {
			return i
		}
	}
	return -1
}

func TestSuiteStepOrder(t *testing.T) {
	suite := Suite()
	click := "click " + SelSignInButton

	t.Run("T_01ChecksPasswordBorderAfterSubmit", func(t *testing.T) {
		steps := describeAll(find(t, suite, "T_01"))
		at := indexOf(steps, "expect "+SelPasswordInput+" css border not to be styles."+StyleInputErrorBorder)
		require.NotEqual(t, -1, at, "steps: %v", steps)
		assert.Greater(t, at, indexOf(steps, click))
	})

	t.Run("T_05ChecksErrorsBeforeSubmit", func(t *testing.T) {
		steps := describeAll(find(t, suite, "T_05"))
		at := indexOf(steps, click)
		require.NotEqual(t, -1, at)
		for _, sel := range []string{SelEmailError, SelPasswordError} {
			pre := indexOf(steps, "expect "+sel+" to show nothing")
			require.NotEqual(t, -1, pre, "steps: %v", steps)
			assert.Less(t, pre, at, "%s is checked before submitting", sel)
		}
	})

	t.Run("T_07LandsOnForgotPasswordEndpoint", func(t *testing.T) {
		steps := describeAll(find(t, suite, "T_07"))
		assert.Contains(t, steps, "expect url to contain endpoint "+EndpointForgotPassword)
	})
}

func TestSuitePreflightsAgainstDefaults(t *testing.T) {
	rt := &scenario.Runtime{
		Fixtures:    DefaultFixtures(),
		Registry:    registry(t, "http://app.test"),
		Credentials: credentials(),
	}
	for _, sc := range Suite().Scenarios {
		for i, step := range sc.Steps {
			p, ok := step.(scenario.Preflighter)
			if !ok {
				continue
			}
			assert.NoError(t, p.Preflight(rt), "%s step %d (%s)", sc.Tag, i+1, step.Describe())
		}
	}
}

func TestSchemas(t *testing.T) {
	for _, name := range []string{"unauthorized", "bad_request", "token"} {
		var doc map[string]any
		require.NoError(t, json.Unmarshal(Schema(name), &doc), name)
		assert.Equal(t, "object", doc["type"], name)
	}
	assert.Panics(t, func() { Schema("missing") })
}

func TestTokenSchemaChecksKeysOnly(t *testing.T) {
	tests := []struct {
		name string
		body string
		pass bool
	}{
		{"Typical", `{"access_token":"a","expires_in":3600,"refresh_token":"r","token_type":"Bearer"}`, true},
		{"StringExpiry", `{"access_token":"a","expires_in":"3600","refresh_token":"r","token_type":"Bearer"}`, true},
		{"EmptyRefreshToken", `{"access_token":"a","expires_in":3600,"refresh_token":"","token_type":"Bearer"}`, true},
		{"MissingKey", `{"access_token":"a","expires_in":3600,"token_type":"Bearer"}`, false},
		{"ExtraKey", `{"access_token":"a","expires_in":3600,"refresh_token":"r","token_type":"Bearer","scope":"all"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				fmt.Fprint(w, tt.body)
			}))
			t.Cleanup(srv.Close)

			logger := zaptest.NewLogger(t)
			runner := scenario.NewRunner(scenario.Options{
				API:         apiclient.New(apiclient.Options{RequestTimeout: 5 * time.Second, Logger: logger}),
				Fixtures:    DefaultFixtures(),
				Registry:    registry(t, srv.URL),
				Credentials: credentials(),
				Logger:      logger,
			})
			suite := scenario.Suite{Name: SuiteName, Scenarios: []*scenario.Scenario{{
				Tag:  "T_06",
				Kind: scenario.KindAPI,
				Steps: []scenario.Step{
					scenario.Request("tokenRequest", http.MethodPost, EndpointOAuthToken, scenario.Body{
						"email":      scenario.Email(),
						"password":   scenario.Password(),
						"grant_type": scenario.Literal(grantPassword),
					}),
					scenario.ExpectStatus("tokenRequest", http.StatusOK),
					scenario.ExpectBodySchema("tokenRequest", "token", Schema("token")),
				},
			}}}

			report, err := runner.Run(context.Background(), suite, scenario.Filter{})
			require.NoError(t, err)
			res := report.Results[0]
			if tt.pass {
				assert.Equal(t, scenario.StatePassed, res.State, "err: %v", res.Err)
				return
			}
			assert.Equal(t, scenario.StateFailed, res.State)
			assert.Equal(t, 3, res.StepIndex+1, "the schema step fails")
		})
	}
}

func TestEndpointsResolve(t *testing.T) {
	reg := registry(t, "https://app.example.com")
	for name, want := range map[string]string{
		EndpointSignin:         "https://app.example.com/signin",
		EndpointOAuthToken:     "https://app.example.com/oauth/token",
		EndpointForgotPassword: "https://app.example.com/forgot-password",
	} {
		got, err := reg.Resolve(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestAPIScenariosAgainstFakeBackend(t *testing.T) {
	srv := newApp(t, 0)
	logger := zaptest.NewLogger(t)
	client := apiclient.New(apiclient.Options{RequestTimeout: 5 * time.Second, Logger: logger})

	runner := scenario.NewRunner(scenario.Options{
		API:         client,
		Fixtures:    DefaultFixtures(),
		Registry:    registry(t, srv.URL),
		Credentials: credentials(),
		Parallel:    3,
		Logger:      logger,
	})
	report, err := runner.Run(context.Background(), Suite(), scenario.Filter{Kind: scenario.KindAPI})
	require.NoError(t, err)
	require.Len(t, report.Results, 6)
	for _, res := range report.Results {
		assert.Equal(t, scenario.StatePassed, res.State, "%s: %v", res.Tag, res.Err)
	}
	assert.True(t, report.Passed())
}

func TestAPIScenarioFailsOnWrongMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"Bad Request","message":"Something else"}`))
	}))
	t.Cleanup(srv.Close)

	runner := scenario.NewRunner(scenario.Options{
		API:         apiclient.New(apiclient.Options{RequestTimeout: 5 * time.Second}),
		Fixtures:    DefaultFixtures(),
		Registry:    registry(t, srv.URL),
		Credentials: credentials(),
		Logger:      zaptest.NewLogger(t),
	})
	report, err := runner.Run(context.Background(), Suite(), scenario.Filter{Tags: []string{"8", "T_10"}})
	require.NoError(t, err)
	require.Len(t, report.Results, 2)

	t08 := report.Results[0]
	assert.Equal(t, scenario.StateFailed, t08.State)
	assert.Equal(t, scenario.CategoryAssertion, t08.Category)
	assert.ErrorContains(t, t08.Err, "Invalid input arguments")
	assert.ErrorContains(t, t08.Err, "Something else")

	assert.Equal(t, scenario.StatePassed, report.Results[1].State, "T_10 does not check the message")
}

func TestFullSuiteInChrome(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	chrome, ok := cdp.FindChrome()
	if !ok {
		t.Skip("no Chrome or Chromium binary found")
	}
	srv := newApp(t, 300*time.Millisecond)
	logger := zaptest.NewLogger(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	driver, err := cdp.New(ctx, browserOptions(chrome, logger))
	require.NoError(t, err)
	defer func() { assert.NoError(t, driver.Close(context.Background())) }()

	runner := scenario.NewRunner(scenario.Options{
		Driver:      driver,
		API:         apiclient.New(apiclient.Options{RequestTimeout: 10 * time.Second, Logger: logger}),
		Fixtures:    DefaultFixtures(),
		Registry:    registry(t, srv.URL),
		Credentials: credentials(),
		StepTimeout: 4 * time.Second,
		Logger:      logger,
	})
	report, err := runner.Run(ctx, Suite(), scenario.Filter{})
	require.NoError(t, err)
	require.Len(t, report.Results, 13)
	for _, res := range report.Results {
		assert.Equal(t, scenario.StatePassed, res.State, "%s: %v", res.Tag, res.Err)
	}
}

func find(t *testing.T, suite scenario.Suite, tag string) *scenario.Scenario {
	t.Helper()
	for _, sc := range suite.Scenarios {
		if sc.Tag == tag {
			return sc
		}
	}
	t.Fatalf("no scenario %s", tag)
	return nil
}

func browserOptions(chrome string, logger *zap.Logger) browser.Options {
	return browser.Options{
		Browser: config.BrowserConfig{Engine: config.EngineChromedp, Headless: true, ExecPath: chrome},
		Network: config.NetworkConfig{
			NavigationTimeout:     30 * time.Second,
			PostLoadWait:          100 * time.Millisecond,
			CaptureResponseBodies: true,
		},
		Logger: logger,
	}
}
