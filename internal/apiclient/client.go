// Package apiclient sends direct requests to the token API and captures them as
// exchanges, the same shape the browser drivers produce.
package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/signin-e2e/internal/capture"
	"github.com/xkilldash9x/signin-e2e/internal/config"
	"github.com/xkilldash9x/signin-e2e/internal/network"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodySize caps how much of a response body is kept.
const maxBodySize = 4 << 20

// ErrTransport wraps failures where no response was received.
var ErrTransport = errors.New("request failed before a response was received")

// Options configure a Client.
type Options struct {
	Network        config.NetworkConfig
	RequestTimeout time.Duration
	Logger         *zap.Logger
	// HTTPClient overrides the transport built from Network.
	HTTPClient *http.Client
}

// Client issues JSON requests and returns them as capture.Exchanges. A non-2xx
// status is a normal result, not an error.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	headers map[string]string
	logger  *zap.Logger
}

// New builds a Client.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = network.NewClient(network.ClientConfigFrom(opts.Network, opts.RequestTimeout, logger)).Client
	}
	c := &Client{
		http:    hc,
		headers: opts.Network.Headers,
		logger:  logger.Named("apiclient"),
	}
	if opts.Network.RateLimit > 0 {
		burst := opts.Network.RateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.Network.RateLimit), burst)
	}
	return c
}

// Do sends method url with body encoded as JSON and returns the exchange under
// alias. A nil body sends nothing; a []byte body is sent as is.
func (c *Client) Do(ctx context.Context, alias, method, url string, body any) (*capture.Exchange, error) {
	var payload []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		payload = b
	case jsoniter.RawMessage:
		payload = b
	default:
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("failed to encode request body for @%s: %w", alias, err)
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait for @%s: %w", alias, err)
		}
	}

	method = strings.ToUpper(method)
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for @%s: %w", alias, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	ex := &capture.Exchange{
		Alias: alias,
		Request: capture.Request{
			Method: method,
			URL:    url,
			Header: req.Header.Clone(),
			Body:   payload,
		},
		StartedAt: time.Now(),
	}

	c.logger.Debug("Sending request.", zap.String("alias", alias), zap.String("method", method), zap.String("url", url))
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("@%s %s %s: %w", alias, method, url, ctxErr)
		}
		return nil, fmt.Errorf("%w: @%s %s %s: %v", ErrTransport, alias, method, url, err)
	}
	defer resp.Body.Close()

	decoded, err := network.DecompressBody(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response body for @%s: %w", alias, err)
	}
	defer decoded.Close()
	data, err := io.ReadAll(io.LimitReader(decoded, maxBodySize))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("@%s reading body: %w", alias, ctxErr)
		}
		return nil, fmt.Errorf("failed to read response body for @%s: %w", alias, err)
	}

	ex.Response = capture.Response{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   data,
	}
	ex.Duration = time.Since(ex.StartedAt)
	c.logger.Debug("Received response.",
		zap.String("alias", alias),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", ex.Duration),
	)
	return ex, nil
}
