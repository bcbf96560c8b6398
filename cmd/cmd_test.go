// cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/signin-e2e/internal/browser"
	"github.com/xkilldash9x/signin-e2e/internal/reporting"
)

const (
	testEmail    = "registered@example.com"
	testPassword = "s3cret-Passw0rd"
)

// executeCommand runs args against a fresh command tree and returns stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SIGNIN_E2E_LOGGER_LEVEL", "error")
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// tokenAPI answers every token request with a 400 shaped by the request body.
func tokenAPI(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = jsoniter.NewDecoder(r.Body).Decode(&req)
		msg := "Invalid input arguments"
		if req["grant_type"] != "password" || req["email"] == nil || req["password"] == nil {
			msg = "Required field grant_type not provided"
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"status":%q,"message":%q}`, http.StatusText(status), msg)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVersion(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "signin-e2e version "+Version+"\n", out)

	out, err = executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "signin-e2e version "+Version+"\n", out)
}

func TestList(t *testing.T) {
	out, err := executeCommand(t, "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "T_01  ui   Shows an error when trying to sign-in with empty email"), lines[0])
	assert.Contains(t, out, "T_13  api  Fails request to token API without grant_type")

	out, err = executeCommand(t, "list", "--kind", "api", "10")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "T_10  api"))
	assert.Contains(t, out, "not checked:")
	assert.NotContains(t, out, "T_08")

	_, err = executeCommand(t, "list", "T_42")
	assert.ErrorContains(t, err, "unknown scenario tag(s) T_42")

	_, err = executeCommand(t, "list", "--kind", "smoke")
	assert.Error(t, err)
}

func TestEndpoints(t *testing.T) {
	out, err := executeCommand(t, "endpoints", "--env", "local", "--api-url", "http://localhost:4000/v1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4, out)
	assert.Equal(t, "environment local (app http://localhost:3000, api http://localhost:4000/v1)", lines[0])
	assert.Equal(t, "forgot_password  app  http://localhost:3000/forgot-password", lines[1])
	assert.Equal(t, "oauth_token      api  http://localhost:4000/v1/oauth/token", lines[2])
	assert.Equal(t, "signin           app  http://localhost:3000/signin", lines[3])

	_, err = executeCommand(t, "endpoints", "--env", "prod")
	assert.ErrorContains(t, err, `environment "prod" is not defined`)
}

func TestRunAPIScenarios(t *testing.T) {
	srv := tokenAPI(t, http.StatusBadRequest)
	t.Setenv("USER_EMAIL", testEmail)
	t.Setenv("USER_PASSWORD", testPassword)

	out, err := executeCommand(t, "run", "--kind", "api", "--env", "test", "--base-url", srv.URL,
		"--format", "json", "-j", "3")
	require.NoError(t, err)

	var doc reporting.JSONDocument
	require.NoError(t, jsoniter.Unmarshal([]byte(out), &doc), out)
	assert.Equal(t, "signin", doc.Suite)
	assert.NotEmpty(t, doc.RunID)
	assert.Equal(t, reporting.JSONSummary{Total: 6, Passed: 6}, doc.Summary)
	assert.NotContains(t, out, testPassword, "credentials never reach the report")
}

func TestRunReportsFailures(t *testing.T) {
	srv := tokenAPI(t, http.StatusInternalServerError)
	out, err := executeCommand(t, "run", "T_08", "--tag", "9", "--env", "test", "--base-url", srv.URL, "--no-color")
	assert.True(t, errors.Is(err, ErrScenariosFailed), "err: %v", err)
	assert.ErrorContains(t, err, "2 of 2")
	assert.Contains(t, out, "FAIL  T_08")
	assert.Contains(t, out, "FAIL  T_09")
	assert.Contains(t, out, `got "500 Internal Server Error"`)
	assert.Contains(t, out, "2 scenarios, 0 passed, 2 failed")
}

func TestRunWritesReportFile(t *testing.T) {
	srv := tokenAPI(t, http.StatusBadRequest)
	t.Setenv("SIGNIN_E2E_REPORT_FORMAT", "junit")
	report := filepath.Join(t.TempDir(), "out", "junit.xml")

	cfgFile := filepath.Join(t.TempDir(), "signin-e2e.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(fmt.Sprintf(`
environment: staging
environments:
  staging:
    base_url: %s
report:
  output: %s
`, srv.URL, report)), 0o600))

	out, err := executeCommand(t, "--config", cfgFile, "run", "8")
	require.NoError(t, err)
	assert.Empty(t, out)
	raw, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "<?xml"), "env overrides the report format")
	assert.Contains(t, string(raw), `name="T_08 Fails request to token API with empty email"`)
}

func TestRunConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"UnknownFormat", []string{"run", "--format", "html"}, "report.format"},
		{"UnknownEngine", []string{"run", "--engine", "webkit"}, "browser.engine"},
		{"BadBaseURL", []string{"run", "--env", "test", "--base-url", "localhost:3000"}, "absolute http(s) URL"},
		{"UnknownTag", []string{"run", "T_42"}, "unknown scenario tag(s) T_42"},
		{"UnknownKind", []string{"run", "--kind", "smoke"}, "smoke"},
		{"TagOutsideKind", []string{"run", "--kind", "api", "--tag", "1"}, "T_01 are not of kind api"},
		{"UnknownEnvironment", []string{"run", "--env", "prod"}, `environment "prod" is not defined`},
		{"MissingConfigFile", []string{"--config", "/nonexistent/signin-e2e.yaml", "run"}, "error reading config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(t, tt.args...)
			require.Error(t, err)
			assert.False(t, errors.Is(err, ErrScenariosFailed))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestRunUIStartsBrowser(t *testing.T) {
	var got browser.Options
	newDriver = func(_ context.Context, opts browser.Options) (browser.Driver, error) {
		got = opts
		return nil, errors.New("no browser in tests")
	}
	t.Cleanup(func() { newDriver = browser.New })

	srv := tokenAPI(t, http.StatusBadRequest)
	_, err := executeCommand(t, "run", "--kind", "api", "--env", "test", "--base-url", srv.URL)
	assert.NotContains(t, fmt.Sprint(err), "no browser", "api scenarios need no browser")

	_, err = executeCommand(t, "run", "7", "--engine", "playwright", "--headless=false")
	assert.ErrorContains(t, err, "no browser in tests")
	assert.Equal(t, "playwright", got.Browser.Engine)
	assert.False(t, got.Browser.Headless)
}

func TestConfigPathSearchesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path, err := configPath("")
	require.NoError(t, err)
	assert.Empty(t, path, "no file, no config")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "signin-e2e.yaml"), []byte("environment: local\n"), 0o600))
	path, err = configPath("")
	require.NoError(t, err)
	assert.Equal(t, "signin-e2e.yaml", path)

	path, err = configPath("explicit.yaml")
	require.NoError(t, err)
	assert.Equal(t, "explicit.yaml", path)
}
