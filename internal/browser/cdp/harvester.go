// internal/browser/cdp/harvester.go
package cdp

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/signin-e2e/internal/capture"
)

const (
	bodyFetchTimeout          = 10 * time.Second
	postDataFetchTimeout      = 5 * time.Second
	networkIdleCheckFrequency = 100 * time.Millisecond
)

// Sink receives every completed exchange.
type Sink func(*capture.Exchange)

type pendingRequest struct {
	id       network.RequestID
	method   string
	url      string
	header   http.Header
	postBody []byte
	hasPost  bool
	started  time.Time
	response *network.Response
}

// Harvester turns CDP network events for one tab into capture.Exchanges.
// Bodies are fetched on worker goroutines because CDP commands cannot be
// issued from inside a ListenTarget callback.
type Harvester struct {
	tabCtx        context.Context
	logger        *zap.Logger
	captureBodies bool
	sink          Sink

	mu       sync.Mutex
	requests map[network.RequestID]*pendingRequest
	active   int
	stopped  bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewHarvester creates a harvester for the tab behind tabCtx.
func NewHarvester(tabCtx context.Context, logger *zap.Logger, captureBodies bool, sink Sink) *Harvester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harvester{
		tabCtx:        tabCtx,
		logger:        logger.Named("harvester"),
		captureBodies: captureBodies,
		sink:          sink,
		requests:      make(map[network.RequestID]*pendingRequest),
	}
}

// Start attaches the event listener and enables the network domain.
func (h *Harvester) Start(ctx context.Context) error {
	listenCtx, cancel := context.WithCancel(h.tabCtx)
	h.cancel = cancel
	chromedp.ListenTarget(listenCtx, h.onEvent)

	runCtx, runCancel := CombineContext(h.tabCtx, ctx)
	defer runCancel()
	if err := chromedp.Run(runCtx, network.Enable()); err != nil {
		cancel()
		return fmt.Errorf("failed to enable network domain: %w", err)
	}
	return nil
}

// Stop detaches the listener and waits for in-flight body fetches.
func (h *Harvester) Stop(ctx context.Context) error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active reports the number of requests still in flight.
func (h *Harvester) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

func (h *Harvester) onEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		h.handleRequestWillBeSent(ev)
	case *network.EventResponseReceived:
		h.handleResponseReceived(ev)
	case *network.EventLoadingFinished:
		h.handleLoadingFinished(ev)
	case *network.EventLoadingFailed:
		h.handleLoadingFailed(ev)
	}
}

// WaitNetworkIdle blocks until no request has been in flight for quiet.
func (h *Harvester) WaitNetworkIdle(ctx context.Context, quiet time.Duration) error {
	timer := time.NewTimer(quiet)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	idle := false

	ticker := time.NewTicker(networkIdleCheckFrequency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.tabCtx.Done():
			return h.tabCtx.Err()
		case <-ticker.C:
			if h.Active() > 0 {
				if idle {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					idle = false
				}
			} else if !idle {
				timer.Reset(quiet)
				idle = true
			}
		case <-timer.C:
			return nil
		}
	}
}

func (h *Harvester) handleRequestWillBeSent(ev *network.EventRequestWillBeSent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || ev.Request == nil {
		return
	}

	// A redirect reuses the request ID; the hop that just ended is an
	// exchange of its own.
	if prev, ok := h.requests[ev.RequestID]; ok && ev.RedirectResponse != nil {
		prev.response = ev.RedirectResponse
		h.active--
		h.complete(prev, false, "")
	}

	req := &pendingRequest{
		id:      ev.RequestID,
		method:  ev.Request.Method,
		url:     ev.Request.URL,
		header:  convertHeaders(ev.Request.Headers),
		hasPost: ev.Request.HasPostData,
		started: time.Now(),
	}
	if ev.Request.URLFragment != "" {
		req.url += ev.Request.URLFragment
	}
	if len(ev.Request.PostDataEntries) > 0 {
		var body []byte
		for _, entry := range ev.Request.PostDataEntries {
			decoded, err := base64.StdEncoding.DecodeString(entry.Bytes)
			if err != nil {
				h.logger.Debug("Post data entry is not base64, using raw bytes.", zap.String("request_id", string(ev.RequestID)))
				decoded = []byte(entry.Bytes)
			}
			body = append(body, decoded...)
		}
		req.postBody = body
	}
	h.requests[ev.RequestID] = req
	h.active++
}

func (h *Harvester) handleResponseReceived(ev *network.EventResponseReceived) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if req, ok := h.requests[ev.RequestID]; ok {
		req.response = ev.Response
	}
}

func (h *Harvester) handleLoadingFinished(ev *network.EventLoadingFinished) {
	h.mu.Lock()
	defer h.mu.Unlock()
	req, ok := h.requests[ev.RequestID]
	if !ok {
		return
	}
	delete(h.requests, ev.RequestID)
	h.active--
	if h.stopped {
		return
	}
	h.complete(req, h.captureBodies, "")
}

func (h *Harvester) handleLoadingFailed(ev *network.EventLoadingFailed) {
	h.mu.Lock()
	defer h.mu.Unlock()
	req, ok := h.requests[ev.RequestID]
	if !ok {
		return
	}
	delete(h.requests, ev.RequestID)
	h.active--
	if h.stopped {
		return
	}
	reason := ev.ErrorText
	if ev.Canceled {
		reason = "canceled"
	}
	h.complete(req, false, reason)
}

// complete fetches whatever the event did not carry and hands the exchange to
// the sink. Must be called with h.mu held.
func (h *Harvester) complete(req *pendingRequest, fetchBody bool, failed string) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ex := &capture.Exchange{
			Request: capture.Request{
				Method: req.method,
				URL:    req.url,
				Header: req.header,
				Body:   req.postBody,
			},
			StartedAt: req.started,
			Duration:  time.Since(req.started),
			Failed:    failed,
		}
		if req.hasPost && ex.Request.Body == nil {
			ex.Request.Body = h.fetchPostBody(req.id)
		}
		if resp := req.response; resp != nil {
			ex.Response.Status = int(resp.Status)
			ex.Response.Header = convertHeaders(resp.Headers)
			if fetchBody && isTextMime(resp.MimeType) {
				ex.Response.Body = h.fetchBody(req.id)
			}
		}
		if h.sink != nil {
			h.sink(ex)
		}
	}()
}

func (h *Harvester) fetchPostBody(id network.RequestID) []byte {
	fetchCtx, cancel := context.WithTimeout(Detach(h.tabCtx), postDataFetchTimeout)
	defer cancel()

	var data string
	err := chromedp.Run(fetchCtx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		data, err = network.GetRequestPostData(id).Do(c)
		return err
	}))
	if err != nil {
		if !strings.Contains(err.Error(), "No post data") && h.tabCtx.Err() == nil {
			h.logger.Debug("Failed to fetch request post data.", zap.String("request_id", string(id)), zap.Error(err))
		}
		return nil
	}
	return []byte(data)
}

func (h *Harvester) fetchBody(id network.RequestID) []byte {
	fetchCtx, cancel := context.WithTimeout(Detach(h.tabCtx), bodyFetchTimeout)
	defer cancel()

	var body []byte
	err := chromedp.Run(fetchCtx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		body, err = network.GetResponseBody(id).Do(c)
		return err
	}))
	if err != nil {
		if h.tabCtx.Err() == nil {
			h.logger.Debug("Failed to fetch response body.", zap.String("request_id", string(id)), zap.Error(err))
		}
		return nil
	}
	return body
}

func convertHeaders(headers network.Headers) http.Header {
	flat := make(map[string]string, len(headers))
	for k, v := range headers {
		switch val := v.(type) {
		case string:
			flat[k] = val
		default:
			flat[k] = fmt.Sprint(val)
		}
	}
	return capture.FromMap(flat)
}

func isTextMime(mimeType string) bool {
	m := strings.ToLower(mimeType)
	return strings.HasPrefix(m, "text/") ||
		strings.Contains(m, "javascript") ||
		strings.Contains(m, "json") ||
		strings.Contains(m, "xml") ||
		strings.Contains(m, "x-www-form-urlencoded")
}
