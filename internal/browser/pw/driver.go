// internal/browser/pw/driver.go
package pw

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/signin-e2e/internal/browser"
	"github.com/xkilldash9x/signin-e2e/internal/capture"
	"github.com/xkilldash9x/signin-e2e/internal/config"
)

const (
	installTimeout = 5 * time.Minute
	launchTimeout  = 60 * time.Second
)

func init() {
	browser.Register(config.EnginePlaywright, func(ctx context.Context, opts browser.Options) (browser.Driver, error) {
		return New(ctx, opts)
	})
}

// Driver runs Chromium through the Playwright driver.
type Driver struct {
	opts    browser.Options
	logger  *zap.Logger
	pw      *playwright.Playwright
	browser playwright.Browser

	mu     sync.Mutex
	pages  map[string]*Page
	wg     sync.WaitGroup
	closed bool
}

// New optionally installs Chromium, starts the driver and launches the browser.
func New(ctx context.Context, opts browser.Options) (*Driver, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Driver{
		opts:   opts,
		logger: logger.Named("playwright"),
		pages:  make(map[string]*Page),
	}

	if opts.Browser.InstallDriver {
		if err := d.ensureInstallation(ctx); err != nil {
			return nil, err
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright driver: %w", err)
	}
	b, err := pw.Chromium.Launch(launchOptions(opts.Browser, opts.Network))
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser instance: %w", err)
	}
	d.pw, d.browser = pw, b
	d.logger.Info("Browser launched.", zap.String("browser_version", b.Version()))
	return d, nil
}

func (d *Driver) ensureInstallation(ctx context.Context) error {
	d.logger.Info("Verifying Playwright browser installation...")
	installCtx, cancel := context.WithTimeout(ctx, installTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			errCh <- fmt.Errorf("failed to install playwright browsers: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-installCtx.Done():
		return fmt.Errorf("timeout waiting for Playwright installation: %w", installCtx.Err())
	}
}

// launchOptions mirrors the chromedp flags so both engines behave alike.
func launchOptions(b config.BrowserConfig, n config.NetworkConfig) playwright.BrowserTypeLaunchOptions {
	args := []string{
		"--disable-gpu",
		"--no-sandbox",
		"--disable-dev-shm-usage",
		"--enable-automation",
	}
	if b.IgnoreTLS || n.IgnoreTLSErrors {
		args = append(args, "--ignore-certificate-errors")
	}
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(b.Headless),
		Args:     append(args, b.Args...),
		Timeout:  playwright.Float(float64(launchTimeout.Milliseconds())),
	}
	if b.ExecPath != "" {
		path, err := config.ExpandPath(b.ExecPath)
		if err != nil {
			path = b.ExecPath
		}
		opts.ExecutablePath = playwright.String(path)
	}
	if b.SlowMo > 0 {
		opts.SlowMo = playwright.Float(float64(b.SlowMo.Milliseconds()))
	}
	return opts
}

func contextOptions(b config.BrowserConfig, n config.NetworkConfig) playwright.BrowserNewContextOptions {
	w, h := b.ViewportSize()
	opts := playwright.BrowserNewContextOptions{
		Viewport:          &playwright.Size{Width: w, Height: h},
		IgnoreHttpsErrors: playwright.Bool(b.IgnoreTLS || n.IgnoreTLSErrors),
	}
	if len(n.Headers) > 0 {
		opts.ExtraHttpHeaders = make(map[string]string, len(n.Headers))
		for k, v := range n.Headers {
			opts.ExtraHttpHeaders[k] = v
		}
	}
	return opts
}

// NewPage opens a page in a new BrowserContext.
func (d *Driver) NewPage(ctx context.Context) (browser.Page, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, browser.ErrClosed
	}
	d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bctx, err := d.browser.NewContext(contextOptions(d.opts.Browser, d.opts.Network))
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	pg, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	id := uuid.NewString()
	p := &Page{
		id:          id,
		bctx:        bctx,
		page:        pg,
		logger:      d.logger.With(zap.String("page_id", id)),
		network:     d.opts.Network,
		interceptor: capture.NewInterceptor(d.logger),
	}
	p.recorder = newRecorder(p.logger, d.opts.Network.CaptureResponseBodies, p.interceptor.Observe)
	p.recorder.attach(pg)

	d.wg.Add(1)
	p.onClose = func() {
		d.mu.Lock()
		delete(d.pages, id)
		d.mu.Unlock()
		d.wg.Done()
	}

	d.mu.Lock()
	d.pages[id] = p
	d.mu.Unlock()
	p.logger.Debug("Page opened.")
	return p, nil
}

// Close closes every page, then the browser and the driver.
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	pages := make([]*Page, 0, len(d.pages))
	for _, p := range d.pages {
		pages = append(pages, p)
	}
	d.mu.Unlock()

	for _, p := range pages {
		go func(p *Page) {
			if err := p.Close(ctx); err != nil {
				d.logger.Warn("Error closing page during shutdown.", zap.String("page_id", p.id), zap.Error(err))
			}
		}(p)
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Warn("Timeout waiting for pages to close.", zap.Error(ctx.Err()))
	}

	var errs []error
	if err := d.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
	}
	if err := d.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop playwright driver: %w", err))
	}
	d.logger.Info("Browser shut down.")
	return errors.Join(errs...)
}
