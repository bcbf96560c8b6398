// internal/browser/cdp/helpers_test.go
package cdp

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/signin-e2e/internal/browser"
	"github.com/xkilldash9x/signin-e2e/internal/config"
)

// newTokenServer serves page for every GET and answers POST /oauth/token with
// a 401 error body.
func newTokenServer(t *testing.T, page string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"status":"Unauthorized","type":"invalid_credentials"}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func browserOptions(logger *zap.Logger) browser.Options {
	b := config.BrowserConfig{Engine: config.EngineChromedp, Headless: true}
	if p, ok := FindChrome(); ok {
		b.ExecPath = p
	}
	return browser.Options{
		Browser: b,
		Network: config.NetworkConfig{
			NavigationTimeout:     30 * time.Second,
			PostLoadWait:          100 * time.Millisecond,
			CaptureResponseBodies: true,
		},
		Logger: logger,
	}
}
