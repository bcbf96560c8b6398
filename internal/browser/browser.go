// internal/browser/browser.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/signin-e2e/internal/capture"
	"github.com/xkilldash9x/signin-e2e/internal/config"
)

var (
	// ErrNotFound is returned by DOM reads when no element matches the selector.
	ErrNotFound = errors.New("element not found")
	// ErrClosed is returned by any call on a page that has been closed.
	ErrClosed = errors.New("page is closed")
	// ErrUnknownEngine is returned by New for an engine that is not registered.
	ErrUnknownEngine = errors.New("unknown browser engine")
)

// TextMatch is the result of probing a selector for a piece of visible text.
type TextMatch struct {
	// Found is true when some matched element contains the text.
	Found bool
	// Visible is true when that element is rendered and not hidden.
	Visible bool
	// Text is the concatenated text of every matched element, for diagnostics.
	Text string
}

// Page is one isolated browser tab. Every blocking call honors ctx; a passed
// deadline surfaces as context.DeadlineExceeded.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Type(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error

	// WaitPresent blocks until the selector matches an element.
	WaitPresent(ctx context.Context, selector string) error
	// WaitGone blocks until the selector matches nothing.
	WaitGone(ctx context.Context, selector string) error

	// Attribute returns the attribute value and whether it is present.
	Attribute(ctx context.Context, selector, name string) (string, bool, error)
	// Value returns the current value property of a form control.
	Value(ctx context.Context, selector string) (string, error)
	// ComputedStyle returns the resolved value of a CSS property.
	ComputedStyle(ctx context.Context, selector, property string) (string, error)
	// TextVisible looks for text inside any element matched by selector.
	TextVisible(ctx context.Context, selector, text string) (TextMatch, error)
	// VisibleText returns the visible text of the matched elements, empty when
	// none are rendered.
	VisibleText(ctx context.Context, selector string) (string, error)
	URL(ctx context.Context) (string, error)

	// Intercept registers an alias for the next network exchange matching m.
	Intercept(alias string, m capture.Matcher) error
	// Await blocks until the alias has been resolved.
	Await(ctx context.Context, alias string) (*capture.Exchange, error)

	Close(ctx context.Context) error
}

// Driver owns a browser process and hands out isolated pages.
type Driver interface {
	// NewPage opens a tab in a fresh browser context; nothing is shared with
	// pages opened earlier.
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}

// Options are handed to an engine factory.
type Options struct {
	Browser config.BrowserConfig
	Network config.NetworkConfig
	Logger  *zap.Logger
}

// Factory starts a driver for one engine.
type Factory func(ctx context.Context, opts Options) (Driver, error)

var (
	enginesMu sync.RWMutex
	engines   = map[string]Factory{}
)

// Register makes an engine available to New. It panics on a duplicate name.
func Register(name string, f Factory) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	if f == nil {
		panic("browser: Register factory is nil")
	}
	if _, dup := engines[name]; dup {
		panic("browser: Register called twice for engine " + name)
	}
	engines[name] = f
}

// Engines returns the registered engine names, sorted.
func Engines() []string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	out := make([]string, 0, len(engines))
	for name := range engines {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New starts the engine selected by opts.Browser.Engine.
func New(ctx context.Context, opts Options) (Driver, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	name := opts.Browser.Engine
	if name == "" {
		name = config.EngineChromedp
	}

	enginesMu.RLock()
	f, ok := engines[name]
	enginesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %v)", ErrUnknownEngine, name, Engines())
	}

	opts.Logger.Info("Starting browser engine.", zap.String("engine", name), zap.Bool("headless", opts.Browser.Headless))
	d, err := f(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s engine: %w", name, err)
	}
	return d, nil
}
