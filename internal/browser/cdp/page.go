// internal/browser/cdp/page.go
package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/signin-e2e/internal/browser"
	"github.com/xkilldash9x/signin-e2e/internal/capture"
	"github.com/xkilldash9x/signin-e2e/internal/config"
	"github.com/xkilldash9x/signin-e2e/internal/observability"
)

const (
	defaultNavigationTimeout = 60 * time.Second
	defaultQuietPeriod       = 500 * time.Millisecond
	stabilizeTimeout         = 10 * time.Second
)

// Page is a chromedp tab implementing browser.Page.
type Page struct {
	id          string
	ctx         context.Context
	cancel      context.CancelFunc
	logger      *zap.Logger
	network     config.NetworkConfig
	harvester   *Harvester
	interceptor *capture.Interceptor
	onClose     func()

	mu     sync.Mutex
	closed bool
}

var _ browser.Page = (*Page)(nil)

func (p *Page) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// run executes actions bounded by both the tab lifetime and ctx.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	if p.isClosed() {
		return browser.ErrClosed
	}
	runCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *Page) evaluate(ctx context.Context, js string, out interface{}) error {
	return p.run(ctx, chromedp.Evaluate(js, out))
}

// Navigate loads url and waits for the page to settle.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating.", zap.String("url", url))
	if p.isClosed() {
		return browser.ErrClosed
	}
	opCtx, opCancel := CombineContext(p.ctx, ctx)
	defer opCancel()

	navTimeout := p.network.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = defaultNavigationTimeout
	}
	navCtx, navCancel := context.WithTimeout(opCtx, navTimeout)
	defer navCancel()

	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("navigation to %s canceled: %w", url, ctx.Err())
		}
		if errors.Is(navCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("navigation to %s timed out after %s: %w", url, navTimeout, context.DeadlineExceeded)
		}
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}

	quiet := p.network.PostLoadWait
	if quiet <= 0 {
		quiet = defaultQuietPeriod
	}
	if err := p.stabilize(opCtx, quiet); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Debug("Page did not settle after navigation.", zap.Error(err))
	}
	return nil
}

// stabilize waits for the body and a quiet network.
func (p *Page) stabilize(ctx context.Context, quiet time.Duration) error {
	stabCtx, cancel := context.WithTimeout(ctx, stabilizeTimeout)
	defer cancel()
	if err := chromedp.Run(stabCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return err
	}
	return p.harvester.WaitNetworkIdle(stabCtx, quiet)
}

func (p *Page) Type(ctx context.Context, selector, text string) error {
	p.logger.Debug("Typing.", zap.String("selector", selector), observability.Secret("text", text))
	err := p.run(ctx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("type into %q failed: %w", selector, err)
	}
	return nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	p.logger.Debug("Clicking.", zap.String("selector", selector))
	err := p.run(ctx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("click on %q failed: %w", selector, err)
	}
	return nil
}

func (p *Page) WaitPresent(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (p *Page) WaitGone(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitNotPresent(selector, chromedp.ByQuery))
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
	var loc string
	if err := p.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

func (p *Page) Intercept(alias string, m capture.Matcher) error {
	if p.isClosed() {
		return browser.ErrClosed
	}
	return p.interceptor.Register(alias, m)
}

func (p *Page) Await(ctx context.Context, alias string) (*capture.Exchange, error) {
	return p.interceptor.Await(ctx, alias)
}

// Close stops the harvester and disposes of the tab and its browser context.
func (p *Page) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if err := p.harvester.Stop(ctx); err != nil {
		p.logger.Debug("Harvester did not drain before close.", zap.Error(err))
	}
	p.releaseIntercepts()
	err := chromedp.Cancel(p.ctx)
	p.cancel()
	if p.onClose != nil {
		p.onClose()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close page: %w", err)
	}
	return nil
}

// releaseIntercepts drops the page's registrations, noting the ones that
// never saw a matching request.
func (p *Page) releaseIntercepts() {
	if pending := p.interceptor.Pending(); len(pending) > 0 {
		p.logger.Debug("Intercepts closed without a match.", zap.Strings("aliases", pending))
	}
	p.interceptor.Reset()
}
