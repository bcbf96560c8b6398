// internal/browser/pw/page.go
package pw

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/signin-e2e/internal/browser"
	"github.com/xkilldash9x/signin-e2e/internal/capture"
	"github.com/xkilldash9x/signin-e2e/internal/config"
	"github.com/xkilldash9x/signin-e2e/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultActionTimeout     = 30 * time.Second
	defaultNavigationTimeout = 60 * time.Second
	stabilizeTimeout         = 10 * time.Second
)

// Page is one Playwright page in its own BrowserContext.
type Page struct {
	id          string
	bctx        playwright.BrowserContext
	page        playwright.Page
	logger      *zap.Logger
	network     config.NetworkConfig
	recorder    *recorder
	interceptor *capture.Interceptor
	onClose     func()

	mu     sync.Mutex
	closed bool
}

var _ browser.Page = (*Page)(nil)

// timeoutFor turns the remaining ctx budget into a Playwright timeout in ms.
func timeoutFor(ctx context.Context, fallback time.Duration) *float64 {
	d := fallback
	if deadline, ok := ctx.Deadline(); ok {
		d = time.Until(deadline)
		if d < time.Millisecond {
			d = time.Millisecond
		}
	}
	return playwright.Float(float64(d.Milliseconds()))
}

// check returns ErrClosed or the context error before a call.
func (p *Page) check(ctx context.Context) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return browser.ErrClosed
	}
	return ctx.Err()
}

// settle maps a Playwright timeout onto the context's error.
func settle(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	p.logger.Debug("Navigating.", zap.String("url", url))
	navTimeout := p.network.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = defaultNavigationTimeout
	}
	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()

	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   timeoutFor(navCtx, navTimeout),
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, settle(navCtx, err))
	}

	stabCtx, stabCancel := context.WithTimeout(ctx, stabilizeTimeout)
	defer stabCancel()
	if err := p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: timeoutFor(stabCtx, stabilizeTimeout),
	}); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Debug("Page did not settle after navigation.", zap.Error(err))
	}
	return nil
}

func (p *Page) Type(ctx context.Context, selector, text string) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	p.logger.Debug("Typing.", zap.String("selector", selector), observability.Secret("text", text))
	err := p.page.Locator(selector).First().PressSequentially(text, playwright.LocatorPressSequentiallyOptions{
		Timeout: timeoutFor(ctx, defaultActionTimeout),
	})
	if err != nil {
		return fmt.Errorf("type into %q failed: %w", selector, settle(ctx, err))
	}
	return nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	p.logger.Debug("Clicking.", zap.String("selector", selector))
	err := p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: timeoutFor(ctx, defaultActionTimeout),
	})
	if err != nil {
		return fmt.Errorf("click on %q failed: %w", selector, settle(ctx, err))
	}
	return nil
}

func (p *Page) waitFor(ctx context.Context, selector string, state *playwright.WaitForSelectorState) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	err := p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   state,
		Timeout: timeoutFor(ctx, defaultActionTimeout),
	})
	return settle(ctx, err)
}

func (p *Page) WaitPresent(ctx context.Context, selector string) error {
	return p.waitFor(ctx, selector, playwright.WaitForSelectorStateAttached)
}

func (p *Page) WaitGone(ctx context.Context, selector string) error {
	return p.waitFor(ctx, selector, playwright.WaitForSelectorStateDetached)
}

// evaluate runs a probe and decodes its result into out.
func (p *Page) evaluate(ctx context.Context, js string, out interface{}) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	res, err := p.page.Evaluate(js)
	if err != nil {
		return settle(ctx, err)
	}
	return decodeResult(res, out)
}

func decodeResult(res, out interface{}) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode probe result: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode probe result: %w", err)
	}
	return nil
}

func (p *Page) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	var probe browser.ElementProbe
	if err := p.evaluate(ctx, browser.ProbeAttribute(selector, name), &probe); err != nil {
		return "", false, err
	}
	v, err := probe.Lookup(selector)
	return v, probe.Present, err
}

func (p *Page) Value(ctx context.Context, selector string) (string, error) {
	var probe browser.ElementProbe
	if err := p.evaluate(ctx, browser.ProbeValue(selector), &probe); err != nil {
		return "", err
	}
	return probe.Lookup(selector)
}

func (p *Page) ComputedStyle(ctx context.Context, selector, property string) (string, error) {
	var probe browser.ElementProbe
	if err := p.evaluate(ctx, browser.ProbeComputedStyle(selector, property), &probe); err != nil {
		return "", err
	}
	return probe.Lookup(selector)
}

func (p *Page) TextVisible(ctx context.Context, selector, text string) (browser.TextMatch, error) {
	var probe browser.TextProbe
	if err := p.evaluate(ctx, browser.ProbeText(selector, text), &probe); err != nil {
		return browser.TextMatch{}, err
	}
	return probe.Match(), nil
}

func (p *Page) VisibleText(ctx context.Context, selector string) (string, error) {
	var text string
	if err := p.evaluate(ctx, browser.ProbeVisibleText(selector), &text); err != nil {
		return "", err
	}
	return text, nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	if err := p.check(ctx); err != nil {
		return "", err
	}
	return p.page.URL(), nil
}

func (p *Page) Intercept(alias string, m capture.Matcher) error {
	if err := p.check(context.Background()); err != nil {
		return err
	}
	return p.interceptor.Register(alias, m)
}

func (p *Page) Await(ctx context.Context, alias string) (*capture.Exchange, error) {
	return p.interceptor.Await(ctx, alias)
}

// Close closes the page's BrowserContext, which takes its storage with it.
func (p *Page) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := p.bctx.Close()
	p.recorder.stop()
	if pending := p.interceptor.Pending(); len(pending) > 0 {
		p.logger.Debug("Intercepts closed without a match.", zap.Strings("aliases", pending))
	}
	p.interceptor.Reset()
	if p.onClose != nil {
		p.onClose()
	}
	if err != nil {
		return fmt.Errorf("failed to close browser context: %w", err)
	}
	return nil
}
