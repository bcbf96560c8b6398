// internal/reporting/junit.go
package reporting

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/xkilldash9x/signin-e2e/internal/scenario"
)

// JUnitReporter writes JUnit XML on Close, one testcase per scenario.
type JUnitReporter struct {
	w      io.WriteCloser
	logger *zap.Logger
	opts   Options

	mu sync.Mutex
	collector
}

func NewJUnitReporter(w io.WriteCloser, logger *zap.Logger, opts Options) *JUnitReporter {
	return &JUnitReporter{w: w, logger: logger, opts: opts}
}

func (r *JUnitReporter) Write(res *scenario.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.add(res)
}

func (r *JUnitReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := r.build()
	_, err := doc.WriteTo(r.w)
	return finish(r.w, r.logger, err)
}

func (r *JUnitReporter) build() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	name := r.opts.Suite
	if name == "" {
		name = "signin-e2e"
	}
	passed, failed := r.counts()
	var total time.Duration
	for _, res := range r.results {
		total += res.Duration
	}

	suites := doc.CreateElement("testsuites")
	suites.CreateAttr("name", name)
	suites.CreateAttr("tests", fmt.Sprint(passed+failed))
	suites.CreateAttr("failures", fmt.Sprint(failed))
	suites.CreateAttr("time", seconds(total))

	suite := suites.CreateElement("testsuite")
	suite.CreateAttr("name", name)
	if r.opts.RunID != "" {
		suite.CreateAttr("id", r.opts.RunID)
	}
	suite.CreateAttr("tests", fmt.Sprint(passed+failed))
	suite.CreateAttr("failures", fmt.Sprint(failed))
	suite.CreateAttr("errors", "0")
	suite.CreateAttr("skipped", "0")
	suite.CreateAttr("time", seconds(total))
	suite.CreateAttr("timestamp", r.opts.Started.UTC().Format("2006-01-02T15:04:05"))

	for _, res := range r.sorted() {
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("name", res.Tag+" "+res.Description)
		tc.CreateAttr("classname", name+"."+res.Kind.String())
		tc.CreateAttr("time", seconds(res.Duration))
		if res.State != scenario.StatePassed {
			msg := failure(res)
			f := tc.CreateElement("failure")
			f.CreateAttr("message", firstLine(msg))
			f.CreateAttr("type", res.Category.String())
			f.SetText(msg)
		}
		if len(res.Gaps) > 0 {
			out := tc.CreateElement("system-out")
			out.SetText("not checked: " + strings.Join(res.Gaps, "\nnot checked: "))
		}
	}
	doc.Indent(2)
	return doc
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
