// internal/scenario/runtime.go
package scenario

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/signin-e2e/internal/browser"
	"github.com/xkilldash9x/signin-e2e/internal/capture"
	"github.com/xkilldash9x/signin-e2e/internal/endpoint"
	"github.com/xkilldash9x/signin-e2e/internal/fixture"
)

// Default budgets, used when Options leave them zero.
const (
	DefaultStepTimeout       = 4 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
	DefaultNavigationTimeout = 60 * time.Second
	DefaultPollInterval      = 50 * time.Millisecond
)

// Credentials are read from USER_EMAIL and USER_PASSWORD.
type Credentials struct {
	Email    string
	Password string
}

// Requester sends a direct API request; *apiclient.Client implements it.
type Requester interface {
	Do(ctx context.Context, alias, method, url string, body any) (*capture.Exchange, error)
}

// Runtime is the state of one scenario while it runs. It is never shared
// between scenarios.
type Runtime struct {
	Scenario    *Scenario
	Page        browser.Page
	API         Requester
	Fixtures    *fixture.Page
	Registry    *endpoint.Registry
	Credentials Credentials
	Logger      *zap.Logger

	StepTimeout       time.Duration
	RequestTimeout    time.Duration
	NavigationTimeout time.Duration
	PollInterval      time.Duration

	mu          sync.Mutex
	exchanges   map[string]*capture.Exchange
	intercepted map[string]bool
}

func (rt *Runtime) init() {
	if rt.Logger == nil {
		rt.Logger = zap.NewNop()
	}
	if rt.StepTimeout <= 0 {
		rt.StepTimeout = DefaultStepTimeout
	}
	if rt.RequestTimeout <= 0 {
		rt.RequestTimeout = DefaultRequestTimeout
	}
	if rt.NavigationTimeout <= 0 {
		rt.NavigationTimeout = DefaultNavigationTimeout
	}
	if rt.PollInterval <= 0 {
		rt.PollInterval = DefaultPollInterval
	}
	rt.exchanges = make(map[string]*capture.Exchange)
	rt.intercepted = make(map[string]bool)
}

// Selector resolves a selector key.
func (rt *Runtime) Selector(key string) (string, error) {
	if rt.Fixtures == nil {
		return "", configErr("no fixtures loaded", nil)
	}
	s, err := rt.Fixtures.Selector(key)
	if err != nil {
		return "", configErr("", err)
	}
	return s, nil
}

// Endpoint resolves a logical endpoint name to a URL.
func (rt *Runtime) Endpoint(name string) (string, error) {
	if rt.Registry == nil {
		return "", configErr("no endpoint registry", nil)
	}
	u, err := rt.Registry.Resolve(name)
	if err != nil {
		return "", configErr(fmt.Sprintf("endpoint %q", name), err)
	}
	return u, nil
}

func (rt *Runtime) page() (browser.Page, error) {
	if rt.Page == nil {
		return nil, configErr("step needs a browser page but the scenario has none", nil)
	}
	return rt.Page, nil
}

// Record stores an exchange under its alias; a later record replaces it.
func (rt *Runtime) Record(ex *capture.Exchange) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.exchanges[ex.Alias] = ex
}

func (rt *Runtime) markIntercepted(alias string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.intercepted[alias] = true
}

// Exchange returns the exchange recorded under alias. An intercepted alias
// that has not been awaited yet is awaited here.
func (rt *Runtime) Exchange(ctx context.Context, alias string) (*capture.Exchange, error) {
	rt.mu.Lock()
	ex, ok := rt.exchanges[alias]
	pending := rt.intercepted[alias]
	rt.mu.Unlock()
	if ok {
		return ex, nil
	}
	if !pending || rt.Page == nil {
		return nil, configErr(fmt.Sprintf("no exchange recorded as @%s", alias), nil)
	}
	return rt.await(ctx, alias)
}

func (rt *Runtime) await(ctx context.Context, alias string) (*capture.Exchange, error) {
	ex, err := rt.Page.Await(ctx, alias)
	switch {
	case errors.Is(err, capture.ErrAwaitTimeout):
		return nil, &TimeoutError{Condition: "network call @" + alias, Err: err}
	case errors.Is(err, capture.ErrUnknownAlias):
		return nil, configErr("", err)
	case err != nil:
		return nil, err
	}
	rt.Record(ex)
	return ex, nil
}
