// internal/browser/pw/pw_test.go
package pw

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/signin-e2e/internal/browser"
	"github.com/xkilldash9x/signin-e2e/internal/capture"
	"github.com/xkilldash9x/signin-e2e/internal/config"
)

func TestLaunchOptions(t *testing.T) {
	opts := launchOptions(config.BrowserConfig{
		Headless: true,
		Args:     []string{"--lang=de-DE"},
		SlowMo:   250 * time.Millisecond,
	}, config.NetworkConfig{IgnoreTLSErrors: true})

	require.NotNil(t, opts.Headless)
	assert.True(t, *opts.Headless)
	assert.Contains(t, opts.Args, "--no-sandbox")
	assert.Contains(t, opts.Args, "--ignore-certificate-errors")
	assert.Equal(t, "--lang=de-DE", opts.Args[len(opts.Args)-1], "user args come last")
	require.NotNil(t, opts.SlowMo)
	assert.Equal(t, 250.0, *opts.SlowMo)
	assert.Nil(t, opts.ExecutablePath)

	opts = launchOptions(config.BrowserConfig{ExecPath: "/opt/chromium"}, config.NetworkConfig{})
	require.NotNil(t, opts.ExecutablePath)
	assert.Equal(t, "/opt/chromium", *opts.ExecutablePath)
	assert.NotContains(t, opts.Args, "--ignore-certificate-errors")
	assert.False(t, *opts.Headless)
}

func TestContextOptions(t *testing.T) {
	opts := contextOptions(
		config.BrowserConfig{Viewport: map[string]int{"width": 800, "height": 600}},
		config.NetworkConfig{Headers: map[string]string{"X-Test-Run": "1"}},
	)
	require.NotNil(t, opts.Viewport)
	assert.Equal(t, 800, opts.Viewport.Width)
	assert.Equal(t, 600, opts.Viewport.Height)
	assert.False(t, *opts.IgnoreHttpsErrors)
	assert.Equal(t, map[string]string{"X-Test-Run": "1"}, opts.ExtraHttpHeaders)

	opts = contextOptions(config.BrowserConfig{}, config.NetworkConfig{})
	assert.Equal(t, 1280, opts.Viewport.Width)
	assert.Nil(t, opts.ExtraHttpHeaders)
}

func TestTimeoutFor(t *testing.T) {
	assert.Equal(t, 1500.0, *timeoutFor(context.Background(), 1500*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ms := *timeoutFor(ctx, time.Minute)
	assert.LessOrEqual(t, ms, 2000.0)
	assert.Greater(t, ms, 1000.0)

	expired, cancel2 := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel2()
	assert.Equal(t, 1.0, *timeoutFor(expired, time.Minute))
}

func TestSettle(t *testing.T) {
	assert.NoError(t, settle(context.Background(), nil))

	err := settle(context.Background(), fmt.Errorf("locator: %w", playwright.ErrTimeout))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other := errors.New("boom")
	assert.Same(t, other, settle(context.Background(), other))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, settle(ctx, other), context.Canceled)
}

func TestDecodeResult(t *testing.T) {
	var probe browser.ElementProbe
	require.NoError(t, decodeResult(map[string]interface{}{"found": true, "present": true, "value": "text"}, &probe))
	assert.Equal(t, browser.ElementProbe{Found: true, Present: true, Value: "text"}, probe)

	var s string
	require.NoError(t, decodeResult("a | b", &s))
	assert.Equal(t, "a | b", s)

	assert.Error(t, decodeResult("x", &probe))
}

// The Playwright driver downloads its own browser, so the integration test
// only runs when asked for.
func TestDriverIntegration(t *testing.T) {
	if os.Getenv("SIGNIN_E2E_PLAYWRIGHT") == "" {
		t.Skip("set SIGNIN_E2E_PLAYWRIGHT=1 to run the playwright integration test")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"status":"Bad Request","message":"Invalid input arguments"}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<!doctype html><body><a id="l" href="#">Forgot Password?</a>
<script>document.getElementById('l').onclick = (e) => { e.preventDefault();
fetch('/oauth/token', {method: 'POST', body: '{"grant_type":"invalid"}'}); };</script></body>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	d, err := New(ctx, browser.Options{
		Browser: config.BrowserConfig{Engine: config.EnginePlaywright, Headless: true, InstallDriver: true},
		Network: config.NetworkConfig{CaptureResponseBodies: true},
		Logger:  zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	defer func() { assert.NoError(t, d.Close(context.Background())) }()

	page, err := d.NewPage(ctx)
	require.NoError(t, err)
	require.NoError(t, page.Navigate(ctx, srv.URL))
	require.NoError(t, page.Intercept("token", capture.NewMatcher("POST", "**/oauth/token")))

	m, err := page.TextVisible(ctx, "a", "Forgot Password?")
	require.NoError(t, err)
	assert.True(t, m.Visible)

	require.NoError(t, page.Click(ctx, "#l"))
	awaitCtx, awaitCancel := context.WithTimeout(ctx, 10*time.Second)
	defer awaitCancel()
	ex, err := page.Await(awaitCtx, "token")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, ex.Response.Status)
	body, err := ex.JSON()
	require.NoError(t, err)
	assert.Equal(t, "Invalid input arguments", body["message"])
	require.NoError(t, page.Close(ctx))
}
