// File: internal/capture/interceptor.go
package capture

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrAwaitTimeout is returned by Await when the context deadline passes first.
	ErrAwaitTimeout = errors.New("timed out waiting for intercepted request")
	// ErrUnknownAlias is returned by Await for an alias that was never registered.
	ErrUnknownAlias = errors.New("alias is not registered")
	// ErrDuplicateAlias is returned by Register when the alias is already in use.
	ErrDuplicateAlias = errors.New("alias is already registered")
)

type registration struct {
	alias   string
	matcher Matcher
	seq     int
	done    chan struct{}
	ex      *Exchange
}

// Interceptor resolves alias registrations against observed exchanges. Each
// registration is resolved by the first matching exchange observed after it
// was registered, exactly once. Drivers call Observe from their event
// goroutines; the runner calls Register and Await.
type Interceptor struct {
	logger *zap.Logger

	mu   sync.Mutex
	regs map[string]*registration
	seq  int
}

// NewInterceptor creates an empty interceptor.
func NewInterceptor(logger *zap.Logger) *Interceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interceptor{
		logger: logger.Named("interceptor"),
		regs:   make(map[string]*registration),
	}
}

// Register adds a pending alias.
func (i *Interceptor) Register(alias string, m Matcher) error {
	if alias == "" {
		return errors.New("alias must not be empty")
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, exists := i.regs[alias]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateAlias, alias)
	}
	i.seq++
	i.regs[alias] = &registration{
		alias:   alias,
		matcher: NewMatcher(m.Method, m.URL),
		seq:     i.seq,
		done:    make(chan struct{}),
	}
	i.logger.Debug("Registered intercept.", zap.String("alias", alias), zap.Stringer("matcher", m))
	return nil
}

// Observe offers a completed exchange to the pending registrations; the oldest
// matching one takes it. It reports whether any registration was resolved.
func (i *Interceptor) Observe(ex *Exchange) bool {
	if ex == nil {
		return false
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	var winner *registration
	for _, reg := range i.regs {
		if reg.ex != nil || !reg.matcher.Match(ex.Request.Method, ex.Request.URL) {
			continue
		}
		if winner == nil || reg.seq < winner.seq {
			winner = reg
		}
	}
	if winner == nil {
		return false
	}

	resolved := ex.Clone()
	resolved.Alias = winner.alias
	winner.ex = resolved
	close(winner.done)
	i.logger.Debug("Resolved intercept.",
		zap.String("alias", winner.alias),
		zap.String("url", ex.Request.URL),
		zap.Int("status", ex.Response.Status),
	)
	return true
}

// Await blocks until alias is resolved or ctx is done.
func (i *Interceptor) Await(ctx context.Context, alias string) (*Exchange, error) {
	i.mu.Lock()
	reg, ok := i.regs[alias]
	i.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlias, alias)
	}

	select {
	case <-reg.done:
		i.mu.Lock()
		defer i.mu.Unlock()
		return reg.ex, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w @%s (%s)", ErrAwaitTimeout, alias, reg.matcher)
		}
		return nil, ctx.Err()
	}
}

// Pending returns the aliases still waiting for a match, sorted.
func (i *Interceptor) Pending() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	var out []string
	for alias, reg := range i.regs {
		if reg.ex == nil {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}

// Reset drops every registration.
func (i *Interceptor) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.regs = make(map[string]*registration)
	i.seq = 0
}
