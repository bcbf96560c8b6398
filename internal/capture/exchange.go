// File: internal/capture/exchange.go
package capture

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrEmptyBody is returned when JSON decoding is attempted on an empty body.
var ErrEmptyBody = errors.New("body is empty")

// Request is the outbound half of a captured exchange.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is the inbound half of a captured exchange. Body is already decoded
// from any content encoding.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Exchange is one request/response pair observed during a scenario.
type Exchange struct {
	Alias     string
	Request   Request
	Response  Response
	StartedAt time.Time
	Duration  time.Duration
	// Failed holds the network error text when no response arrived.
	Failed string
}

// Header returns the first value of a response header, case-insensitively.
func (e *Exchange) Header(name string) string {
	return headerValue(e.Response.Header, name)
}

// JSON decodes the response body as a JSON object.
func (e *Exchange) JSON() (map[string]any, error) {
	return decodeObject("response", e.Response.Body)
}

// RequestJSON decodes the request body as a JSON object.
func (e *Exchange) RequestJSON() (map[string]any, error) {
	return decodeObject("request", e.Request.Body)
}

// Clone returns a deep copy so the original can keep being written by the driver.
func (e *Exchange) Clone() *Exchange {
	if e == nil {
		return nil
	}
	c := *e
	c.Request.Header = e.Request.Header.Clone()
	c.Response.Header = e.Response.Header.Clone()
	c.Request.Body = append([]byte(nil), e.Request.Body...)
	c.Response.Body = append([]byte(nil), e.Response.Body...)
	return &c
}

func (e *Exchange) String() string {
	return fmt.Sprintf("%s %s -> %d", e.Request.Method, e.Request.URL, e.Response.Status)
}

func decodeObject(side string, body []byte) (map[string]any, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, fmt.Errorf("%s %w", side, ErrEmptyBody)
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%s body is not a JSON object: %w", side, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%s body is JSON null", side)
	}
	return out, nil
}

func headerValue(h http.Header, name string) string {
	if h == nil {
		return ""
	}
	if v := h.Get(name); v != "" {
		return v
	}
	// CDP reports header names as sent, which may not be canonical.
	for k, vals := range h {
		if strings.EqualFold(k, name) && len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}

// FromMap converts a flat header map, as reported by CDP and playwright, into an http.Header.
func FromMap(m map[string]string) http.Header {
	h := make(http.Header, len(m))
	for k, v := range m {
		// CDP joins repeated headers with newlines.
		for _, part := range strings.Split(v, "\n") {
			h.Add(k, part)
		}
	}
	return h
}
