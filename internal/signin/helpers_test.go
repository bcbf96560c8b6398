// internal/signin/helpers_test.go
package signin

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/signin-e2e/internal/endpoint"
	"github.com/xkilldash9x/signin-e2e/internal/scenario"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	registeredEmail    = "registered@example.com"
	registeredPassword = "s3cret-Passw0rd"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// tokenHandler answers POST /oauth/token the way the sign-in backend does.
func tokenHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"status":"Bad Request","message":"Malformed body"}`)
		return
	}
	email, hasEmail := req["email"].(string)
	password, hasPassword := req["password"].(string)
	switch {
	case req["grant_type"] != "password", !hasEmail, !hasPassword:
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"status":"Bad Request","message":"Required field grant_type not provided"}`)
	case !emailPattern.MatchString(email):
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"status":"Bad Request","message":"Invalid input arguments"}`)
	case email == registeredEmail && password == registeredPassword:
		fmt.Fprint(w, `{"access_token":"at-1","expires_in":3600,"refresh_token":"rt-1","token_type":"Bearer"}`)
	default:
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"status":"Unauthorized","type":"invalid_credentials"}`)
	}
}

// newApp serves the sign-in page for every GET and the token API under
// /oauth/token. The token API answers after delay so the spinner is observable.
func newApp(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	page, err := os.ReadFile("testdata/signin.html")
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
		tokenHandler(w, r)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func registry(t *testing.T, baseURL string) *endpoint.Registry {
	t.Helper()
	reg, err := endpoint.NewRegistry("test", map[string]endpoint.Environment{
		"test": {BaseURL: baseURL, APIURL: baseURL},
	}, Endpoints()...)
	require.NoError(t, err)
	return reg
}

func credentials() scenario.Credentials {
	return scenario.Credentials{Email: registeredEmail, Password: registeredPassword}
}
