// internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/signin-e2e/internal/scenario"
)

// Supported report formats.
const (
	FormatText  = "text"
	FormatJSON  = "json"
	FormatJUnit = "junit"
	FormatSARIF = "sarif"
)

// Formats lists the accepted values of New's format argument.
var Formats = []string{FormatText, FormatJSON, FormatJUnit, FormatSARIF}

// Reporter defines the interface for writing scenario results to an output.
type Reporter interface {
	// Write records one finished scenario.
	Write(result *scenario.Result) error
	// Close finalizes the report and closes any underlying file.
	Close() error
}

// Options describe the run being reported.
type Options struct {
	RunID       string
	Suite       string
	Started     time.Time
	ToolVersion string
	// NoColor disables styling in the text format.
	NoColor bool
	// Stdout replaces os.Stdout as the standard output target.
	Stdout io.Writer
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format that writes to outputPath. An empty path
// or "stdout" writes to standard output, which is never closed.
func New(format, outputPath string, logger *zap.Logger, opts Options) (Reporter, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	switch format {
	case FormatText, FormatJSON, FormatJUnit, FormatSARIF:
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	if opts.Started.IsZero() {
		opts.Started = time.Now()
	}

	writer, err := openOutput(outputPath, opts.Stdout)
	if err != nil {
		return nil, err
	}
	logger = logger.Named("reporter").With(zap.String("format", format))

	switch format {
	case FormatText:
		return NewTextReporter(writer, opts), nil
	case FormatJSON:
		return NewJSONReporter(writer, logger, opts), nil
	case FormatJUnit:
		return NewJUnitReporter(writer, logger, opts), nil
	default:
		// NewSARIFReporter takes ownership of the writer.
		return NewSARIFReporter(writer, logger, opts), nil
	}
}

func openOutput(outputPath string, stdout io.Writer) (io.WriteCloser, error) {
	if outputPath == "" || outputPath == "stdout" {
		if stdout == nil {
			stdout = os.Stdout
		}
		return &nopWriteCloser{stdout}, nil
	}
	path, err := homedir.Expand(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to expand output path %s: %w", outputPath, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	return f, nil
}

// collector buffers results for the formats that emit one document on Close.
type collector struct {
	results []*scenario.Result
}

func (c *collector) add(r *scenario.Result) error {
	if r == nil {
		return fmt.Errorf("nil result")
	}
	c.results = append(c.results, r)
	return nil
}

// sorted returns the buffered results in tag order. Scenarios finish out of
// order when API scenarios run in parallel.
func (c *collector) sorted() []*scenario.Result {
	out := append([]*scenario.Result(nil), c.results...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

func (c *collector) counts() (passed, failed int) {
	for _, r := range c.results {
		if r.State == scenario.StatePassed {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

// failure is the one-line diagnostic of a failed result.
func failure(r *scenario.Result) string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// finish closes w after an encoding attempt, preferring the encoding error.
func finish(w io.Closer, logger *zap.Logger, encodeErr error) error {
	closeErr := w.Close()
	if encodeErr != nil {
		logger.Error("Failed to encode report.", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode report: %w", encodeErr)
	}
	if closeErr != nil {
		logger.Error("Failed to close output writer.", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}
