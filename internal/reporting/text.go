// internal/reporting/text.go
package reporting

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/xkilldash9x/signin-e2e/internal/scenario"
)

type textStyles struct {
	pass, fail, tag, dim, detail, summary lipgloss.Style
}

func newTextStyles(r *lipgloss.Renderer, noColor bool) textStyles {
	if noColor {
		plain := r.NewStyle()
		return textStyles{plain, plain, plain, plain, plain, plain}
	}
	return textStyles{
		pass:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7ec699")),
		fail:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("#d48a8a")),
		tag:     r.NewStyle().Foreground(lipgloss.Color("#7eb8da")),
		dim:     r.NewStyle().Foreground(lipgloss.Color("#8b949e")),
		detail:  r.NewStyle().Foreground(lipgloss.Color("#c9d1d9")),
		summary: r.NewStyle().Bold(true),
	}
}

// TextReporter prints one line per scenario as it finishes and a summary on
// Close.
type TextReporter struct {
	w     io.WriteCloser
	style textStyles
	opts  Options

	mu             sync.Mutex
	passed, failed int
	err            error
}

// NewTextReporter creates a text reporter. Colors are only emitted when w is
// a terminal and NoColor is unset.
func NewTextReporter(w io.WriteCloser, opts Options) *TextReporter {
	return &TextReporter{
		w:     w,
		style: newTextStyles(lipgloss.NewRenderer(w), opts.NoColor),
		opts:  opts,
	}
}

func (r *TextReporter) Write(res *scenario.Result) error {
	if res == nil {
		return fmt.Errorf("nil result")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	status := r.style.pass.Render("PASS")
	if res.State == scenario.StatePassed {
		r.passed++
	} else {
		r.failed++
		status = r.style.fail.Render("FAIL")
	}
	fmt.Fprintf(&b, "%s  %s  %s %s\n", status, r.style.tag.Render(res.Tag), res.Description,
		r.style.dim.Render(fmt.Sprintf("(%s, %s)", res.Kind, res.Duration.Round(time.Millisecond))))
	if res.State != scenario.StatePassed {
		fmt.Fprintf(&b, "      %s\n", r.style.detail.Render(failure(res)))
		fmt.Fprintf(&b, "      %s\n", r.style.dim.Render("category: "+res.Category.String()))
	}
	for _, gap := range res.Gaps {
		fmt.Fprintf(&b, "      %s\n", r.style.dim.Render("not checked: "+gap))
	}
	return r.write(b.String())
}

func (r *TextReporter) write(s string) error {
	if r.err != nil {
		return r.err
	}
	if _, err := io.WriteString(r.w, s); err != nil {
		r.err = fmt.Errorf("failed to write text report: %w", err)
	}
	return r.err
}

func (r *TextReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	summary := fmt.Sprintf("%d scenarios, %d passed, %d failed", r.passed+r.failed, r.passed, r.failed)
	if r.opts.Suite != "" {
		summary = r.opts.Suite + ": " + summary
	}
	line := "\n" + r.style.summary.Render(summary)
	if r.opts.RunID != "" {
		line += " " + r.style.dim.Render("run "+r.opts.RunID)
	}
	writeErr := r.write(line + "\n")
	closeErr := r.w.Close()
	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}
