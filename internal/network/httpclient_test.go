// internal/network/httpclient_test.go
package network

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/signin-e2e/internal/config"
)

// -- Configuration and Defaults --

func TestNewDefaultClientConfig(t *testing.T) {
	cfg := NewDefaultClientConfig()
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, DefaultResponseHeaderTimeout, cfg.ResponseHeaderTimeout)
	assert.Equal(t, DefaultMaxIdleConns, cfg.MaxIdleConns)
	assert.True(t, cfg.ForceHTTP2, "HTTP/2 should be preferred by default")
	assert.True(t, cfg.DisableCompression, "bodies are decoded explicitly")
	require.NotNil(t, cfg.DialerConfig)
	assert.True(t, cfg.DialerConfig.NoDelay)
	assert.NotNil(t, cfg.Logger)
}

func TestClientConfigFrom(t *testing.T) {
	logger := zaptest.NewLogger(t)

	cfg := ClientConfigFrom(config.NetworkConfig{Timeout: 7 * time.Second, IgnoreTLSErrors: true}, 0, logger)
	assert.Equal(t, 7*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.IgnoreTLSErrors)

	cfg = ClientConfigFrom(config.NetworkConfig{Timeout: 7 * time.Second}, 3*time.Second, logger)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout, "the runner's request timeout wins")

	cfg = ClientConfigFrom(config.NetworkConfig{}, 0, nil)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
}

func TestConfigureTLS(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		tlsConfig := configureTLS(NewDefaultClientConfig())
		require.NotNil(t, tlsConfig)
		assert.Equal(t, uint16(requiredMinTLSVersion), tlsConfig.MinVersion)
		assert.Equal(t, defaultSecureCipherSuites, tlsConfig.CipherSuites)
		assert.NotNil(t, tlsConfig.ClientSessionCache)
		assert.False(t, tlsConfig.InsecureSkipVerify)
	})

	t.Run("CustomConfigCloneAndMerge", func(t *testing.T) {
		custom := &tls.Config{ServerName: "custom.sni", MinVersion: tls.VersionTLS10}
		cfg := NewDefaultClientConfig()
		cfg.TLSConfig = custom
		cfg.IgnoreTLSErrors = true

		tlsConfig := configureTLS(cfg)
		assert.Equal(t, "custom.sni", tlsConfig.ServerName)
		assert.Equal(t, uint16(requiredMinTLSVersion), tlsConfig.MinVersion, "MinVersion is raised to TLS 1.2")
		assert.True(t, tlsConfig.InsecureSkipVerify)
		assert.NotSame(t, custom, tlsConfig)
		assert.False(t, custom.InsecureSkipVerify, "original is untouched")
	})

	t.Run("StricterSettingsKept", func(t *testing.T) {
		ciphers := []uint16{tls.TLS_AES_256_GCM_SHA384}
		cfg := NewDefaultClientConfig()
		cfg.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS13, CipherSuites: ciphers}
		tlsConfig := configureTLS(cfg)
		assert.Equal(t, uint16(tls.VersionTLS13), tlsConfig.MinVersion)
		assert.Equal(t, ciphers, tlsConfig.CipherSuites)
	})
}

// -- Transport --

func TestNewHTTPTransport_ConfigurationMapping(t *testing.T) {
	cfg := NewDefaultClientConfig()
	cfg.MaxIdleConns = 55
	cfg.IdleConnTimeout = 99 * time.Second
	cfg.ResponseHeaderTimeout = 5 * time.Second
	cfg.DisableKeepAlives = true

	transport := NewHTTPTransport(cfg)
	assert.Equal(t, 55, transport.MaxIdleConns)
	assert.Equal(t, 99*time.Second, transport.IdleConnTimeout)
	assert.Equal(t, 5*time.Second, transport.ResponseHeaderTimeout)
	assert.True(t, transport.DisableKeepAlives)
	assert.True(t, transport.DisableCompression)
	assert.NotNil(t, transport.DialContext)
}

func TestNewHTTPTransport_NilConfig(t *testing.T) {
	assert.NotPanics(t, func() {
		transport := NewHTTPTransport(nil)
		assert.NotNil(t, transport)
	})
}

func TestNewHTTPTransport_Proxy(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.local:8080")
	cfg := NewDefaultClientConfig()
	cfg.ProxyURL = proxyURL
	transport := NewHTTPTransport(cfg)

	req, _ := http.NewRequest(http.MethodGet, "http://app.local/signin", nil)
	got, err := transport.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, proxyURL, got)
}

func TestNewHTTPTransport_HTTP2(t *testing.T) {
	cfg := NewDefaultClientConfig()
	transport := NewHTTPTransport(cfg)
	assert.True(t, transport.ForceAttemptHTTP2)
	assert.Equal(t, []string{"h2", "http/1.1"}, transport.TLSClientConfig.NextProtos)

	cfg.ForceHTTP2 = false
	transport = NewHTTPTransport(cfg)
	assert.False(t, transport.ForceAttemptHTTP2)
	assert.Equal(t, []string{"http/1.1"}, transport.TLSClientConfig.NextProtos)
}

// -- Client behavior --

func TestNewClient_RedirectNotFollowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/workspace/", http.StatusFound)
		}
	}))
	defer server.Close()

	resp, err := NewClient(nil).Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/workspace/", resp.Header.Get("Location"))
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()
	defer close(release)

	cfg := NewDefaultClientConfig()
	cfg.RequestTimeout = 100 * time.Millisecond
	start := time.Now()
	resp, err := NewClient(cfg).Get(server.URL)
	require.Error(t, err)
	assert.Nil(t, resp)

	var urlErr *url.Error
	require.True(t, errors.As(err, &urlErr))
	assert.True(t, urlErr.Timeout() || errors.Is(urlErr.Err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestClient_InsecureSkipVerify(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "OK Insecure")
	}))
	defer server.Close()

	_, err := NewClient(nil).Get(server.URL)
	assert.Error(t, err, "default client rejects an untrusted certificate")

	cfg := NewDefaultClientConfig()
	cfg.IgnoreTLSErrors = true
	resp, err := NewClient(cfg).Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "OK Insecure", string(body))
}

func TestClient_ConnectionReuse(t *testing.T) {
	var mu sync.Mutex
	remoteAddrs := map[string]bool{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		remoteAddrs[r.RemoteAddr] = true
		mu.Unlock()
	}))
	defer server.Close()

	client := NewClient(nil)
	const iterations = 5
	for i := 0; i < iterations; i++ {
		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Less(t, len(remoteAddrs), iterations)
	assert.Greater(t, len(remoteAddrs), 0)
}

// -- Decompression --

func encode(t *testing.T, encoding string, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch encoding {
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "deflate":
		w = zlib.NewWriter(&buf)
	case "br":
		w = brotli.NewWriter(&buf)
	default:
		return payload
	}
	_, err := w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDecompressBody(t *testing.T) {
	payload := []byte(`{"status":"Bad Request","message":"Invalid input arguments"}`)
	for _, encoding := range []string{"gzip", "deflate", "br", "", "identity"} {
		t.Run("encoding="+encoding, func(t *testing.T) {
			resp := &http.Response{
				Header: http.Header{"Content-Encoding": {encoding}},
				Body:   io.NopCloser(bytes.NewReader(encode(t, encoding, payload))),
			}
			rc, err := DecompressBody(resp)
			require.NoError(t, err)
			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, payload, got)
		})
	}

	t.Run("CorruptGzip", func(t *testing.T) {
		resp := &http.Response{
			Header: http.Header{"Content-Encoding": {"gzip"}},
			Body:   io.NopCloser(bytes.NewReader([]byte("not gzip"))),
		}
		_, err := DecompressBody(resp)
		assert.Error(t, err)
	})

	t.Run("NoBody", func(t *testing.T) {
		rc, err := DecompressBody(&http.Response{})
		require.NoError(t, err)
		got, _ := io.ReadAll(rc)
		assert.Empty(t, got)

		rc, err = DecompressBody(nil)
		require.NoError(t, err)
		assert.Equal(t, http.NoBody, rc)
	})
}
