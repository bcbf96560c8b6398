// internal/browser/pw/recorder.go
package pw

import (
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/signin-e2e/internal/capture"
)

// recorder converts Playwright response events into capture.Exchanges. Body
// reads round-trip to the driver, so they run off the event goroutine.
type recorder struct {
	logger        *zap.Logger
	captureBodies bool
	sink          func(*capture.Exchange) bool

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func newRecorder(logger *zap.Logger, captureBodies bool, sink func(*capture.Exchange) bool) *recorder {
	return &recorder{logger: logger.Named("recorder"), captureBodies: captureBodies, sink: sink}
}

func (r *recorder) attach(p playwright.Page) {
	p.OnResponse(func(resp playwright.Response) {
		r.spawn(func() { r.sink(r.fromResponse(resp)) })
	})
	p.OnRequestFailed(func(req playwright.Request) {
		r.spawn(func() { r.sink(r.fromFailure(req)) })
	})
}

func (r *recorder) spawn(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

// stop drops later events and waits for pending conversions.
func (r *recorder) stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *recorder) request(req playwright.Request) capture.Request {
	out := capture.Request{Method: req.Method(), URL: req.URL()}
	if headers, err := req.AllHeaders(); err == nil {
		out.Header = capture.FromMap(headers)
	} else {
		out.Header = capture.FromMap(req.Headers())
	}
	if body, err := req.PostDataBuffer(); err == nil && len(body) > 0 {
		out.Body = body
	}
	return out
}

func (r *recorder) fromResponse(resp playwright.Response) *capture.Exchange {
	ex := &capture.Exchange{
		Request:   r.request(resp.Request()),
		StartedAt: time.Now(),
	}
	ex.Response.Status = resp.Status()
	if headers, err := resp.AllHeaders(); err == nil {
		ex.Response.Header = capture.FromMap(headers)
	} else {
		ex.Response.Header = capture.FromMap(resp.Headers())
	}
	// Redirects have no body to read.
	if r.captureBodies && (ex.Response.Status < 300 || ex.Response.Status >= 400) {
		body, err := resp.Body()
		if err != nil {
			r.logger.Debug("Failed to read response body.", zap.String("url", ex.Request.URL), zap.Error(err))
		} else {
			ex.Response.Body = body
		}
	}
	return ex
}

func (r *recorder) fromFailure(req playwright.Request) *capture.Exchange {
	ex := &capture.Exchange{Request: r.request(req), StartedAt: time.Now(), Failed: "request failed"}
	if err := req.Failure(); err != nil {
		ex.Failed = err.Error()
	}
	return ex
}
