// File: internal/network/decompress.go
package network

import (
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// closeWrapper closes both the decoder and the original body.
type closeWrapper struct {
	io.Reader
	closer       func() error
	originalBody io.ReadCloser
}

func (w *closeWrapper) Close() error {
	var err1 error
	if w.closer != nil {
		err1 = w.closer()
	}
	err2 := w.originalBody.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// DecompressBody returns a reader that decodes resp.Body according to its
// Content-Encoding. Unknown or missing encodings pass through unchanged.
func DecompressBody(resp *http.Response) (io.ReadCloser, error) {
	if resp == nil || resp.Body == nil || resp.Body == http.NoBody {
		return http.NoBody, nil
	}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip", "x-gzip":
		reader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return &closeWrapper{Reader: reader, closer: reader.Close, originalBody: resp.Body}, nil
	case "deflate":
		reader, err := zlib.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create zlib reader: %w", err)
		}
		return &closeWrapper{Reader: reader, closer: reader.Close, originalBody: resp.Body}, nil
	case "br":
		return &closeWrapper{Reader: brotli.NewReader(resp.Body), originalBody: resp.Body}, nil
	default:
		return resp.Body, nil
	}
}
