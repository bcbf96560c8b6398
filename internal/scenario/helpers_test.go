// internal/scenario/helpers_test.go
package scenario

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/signin-e2e/internal/capture"
	"github.com/xkilldash9x/signin-e2e/internal/endpoint"
	"github.com/xkilldash9x/signin-e2e/internal/fixture"
	"github.com/xkilldash9x/signin-e2e/internal/mocks"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	testEmail    = "qa@example.test"
	testPassword = "s3cret-pass"
	signinURL    = "http://app.test/signin"
	tokenURL     = "http://api.test/oauth/token"
)

func testFixtures(t *testing.T) *fixture.Page {
	t.Helper()
	p, err := fixture.NewPage("signin",
		map[string]string{
			"userEmail.input":               `[id="text-input"]`,
			"userEmail.errorMessageSpan":    "form div:nth-of-type(1) span",
			"userPassword.input":            `[id="password-input"]`,
			"userPassword.errorMessageSpan": "form div:nth-of-type(2) span",
			"signInButton":                  "button[type=submit]",
		},
		map[string]string{"emptyEmailMessage": "Email can’t be blank"},
		map[string]string{"inputErrorBorder": "2px solid rgb(204, 0, 0)"},
	)
	require.NoError(t, err)
	return p
}

func testRegistry(t *testing.T) *endpoint.Registry {
	t.Helper()
	r, err := endpoint.NewRegistry("test",
		map[string]endpoint.Environment{"test": {BaseURL: "http://app.test", APIURL: "http://api.test"}},
		endpoint.Endpoint{Name: "signin", Host: endpoint.HostApp, Path: "/signin"},
		endpoint.Endpoint{Name: "oauth_token", Host: endpoint.HostAPI, Path: "/oauth/token"},
	)
	require.NoError(t, err)
	return r
}

// testRuntime builds an initialised runtime with short budgets.
func testRuntime(t *testing.T, page *mocks.MockPage, api Requester) *Runtime {
	t.Helper()
	rt := &Runtime{
		Fixtures:     testFixtures(t),
		Registry:     testRegistry(t),
		Credentials:  Credentials{Email: testEmail, Password: testPassword},
		Logger:       zaptest.NewLogger(t),
		StepTimeout:  150 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
		API:          api,
	}
	if page != nil {
		rt.Page = page
	}
	rt.init()
	return rt
}

func jsonExchange(alias string, status int, body string) *capture.Exchange {
	return &capture.Exchange{
		Alias: alias,
		Request: capture.Request{
			Method: http.MethodPost,
			URL:    tokenURL,
			Body:   []byte(`{"email":"qa@example.test","password":"s3cret-pass","grant_type":"password"}`),
		},
		Response: capture.Response{
			Status: status,
			Header: http.Header{"Content-Type": {"application/json; charset=utf-8"}},
			Body:   []byte(body),
		},
	}
}
