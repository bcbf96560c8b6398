// internal/browser/cdp/driver.go
package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/signin-e2e/internal/browser"
	"github.com/xkilldash9x/signin-e2e/internal/capture"
	"github.com/xkilldash9x/signin-e2e/internal/config"
)

func init() {
	browser.Register(config.EngineChromedp, func(ctx context.Context, opts browser.Options) (browser.Driver, error) {
		return New(ctx, opts)
	})
}

// Driver owns one Chrome process. Every page gets its own browser context.
type Driver struct {
	opts   browser.Options
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu     sync.Mutex
	pages  map[string]*Page
	closed bool
}

// New launches Chrome and waits for it to accept connections.
func New(ctx context.Context, opts browser.Options) (*Driver, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("cdp")

	// The process must outlive ctx; Close tears it down.
	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), DefaultAllocatorOptions(opts.Browser, opts.Network)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Debugf),
	)

	// The first Run allocates the browser and is bound to browserCtx itself,
	// so ctx is only raced against it.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()
	select {
	case err := <-started:
		if err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("failed to launch chrome: %w", err)
		}
	case <-ctx.Done():
		browserCancel()
		allocCancel()
		return nil, ctx.Err()
	}

	logger.Debug("Chrome started.")
	return &Driver{
		opts:          opts,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		pages:         make(map[string]*Page),
	}, nil
}

// NewPage opens a tab in a new incognito-like browser context.
func (d *Driver) NewPage(ctx context.Context) (browser.Page, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, browser.ErrClosed
	}
	d.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(d.browserCtx, chromedp.WithNewBrowserContext())
	created := make(chan error, 1)
	go func() { created <- chromedp.Run(tabCtx) }()
	select {
	case err := <-created:
		if err != nil {
			tabCancel()
			return nil, fmt.Errorf("failed to open tab: %w", err)
		}
	case <-ctx.Done():
		tabCancel()
		return nil, ctx.Err()
	}

	id := uuid.NewString()
	p := &Page{
		id:          id,
		ctx:         tabCtx,
		cancel:      tabCancel,
		logger:      d.logger.With(zap.String("page_id", id)),
		network:     d.opts.Network,
		interceptor: capture.NewInterceptor(d.logger),
	}
	p.harvester = NewHarvester(tabCtx, p.logger, d.opts.Network.CaptureResponseBodies, func(ex *capture.Exchange) {
		p.interceptor.Observe(ex)
	})
	p.onClose = func() { d.forget(id) }

	if err := p.harvester.Start(ctx); err != nil {
		_ = p.Close(context.Background())
		return nil, err
	}
	if len(d.opts.Network.Headers) > 0 {
		headers := make(network.Headers, len(d.opts.Network.Headers))
		for k, v := range d.opts.Network.Headers {
			headers[k] = v
		}
		if err := p.run(ctx, network.SetExtraHTTPHeaders(headers)); err != nil {
			_ = p.Close(context.Background())
			return nil, fmt.Errorf("failed to set extra headers: %w", err)
		}
	}

	d.mu.Lock()
	d.pages[id] = p
	d.mu.Unlock()
	p.logger.Debug("Page opened.")
	return p, nil
}

func (d *Driver) forget(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pages, id)
}

// Close closes every open page and then the browser.
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

	var errs []error
	for _, p := range pages {
		if err := p.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := chromedp.Cancel(d.browserCtx); err != nil && !errors.Is(err, context.Canceled) {
		errs = append(errs, fmt.Errorf("failed to close chrome: %w", err))
	}
	d.browserCancel()
	d.allocCancel()
	d.logger.Debug("Chrome stopped.")
	return errors.Join(errs...)
}
