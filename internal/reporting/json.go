// internal/reporting/json.go
package reporting

import (
	"io"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/signin-e2e/internal/scenario"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONDocument is the document written by the json format.
type JSONDocument struct {
	RunID   string       `json:"run_id"`
	Suite   string       `json:"suite"`
	Started time.Time    `json:"started"`
	Results []JSONResult `json:"results"`
	Summary JSONSummary  `json:"summary"`
}

// JSONResult is one scenario outcome.
type JSONResult struct {
	Tag         string   `json:"tag"`
	Description string   `json:"description"`
	Kind        string   `json:"kind"`
	State       string   `json:"state"`
	Category    string   `json:"category,omitempty"`
	Step        string   `json:"step,omitempty"`
	StepNumber  *int     `json:"step_number,omitempty"`
	Error       string   `json:"error,omitempty"`
	DurationMS  int64    `json:"duration_ms"`
	Gaps        []string `json:"gaps,omitempty"`
}

// JSONSummary counts the results.
type JSONSummary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// JSONReporter writes a single JSON document on Close.
type JSONReporter struct {
	w      io.WriteCloser
	logger *zap.Logger
	opts   Options

	mu sync.Mutex
	collector
}

func NewJSONReporter(w io.WriteCloser, logger *zap.Logger, opts Options) *JSONReporter {
	return &JSONReporter{w: w, logger: logger, opts: opts}
}

func (r *JSONReporter) Write(res *scenario.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.add(res)
}

func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := JSONDocument{
		RunID:   r.opts.RunID,
		Suite:   r.opts.Suite,
		Started: r.opts.Started.UTC(),
		Results: []JSONResult{},
	}
	for _, res := range r.sorted() {
		jr := JSONResult{
			Tag:         res.Tag,
			Description: res.Description,
			Kind:        res.Kind.String(),
			State:       res.State.String(),
			DurationMS:  res.Duration.Milliseconds(),
			Gaps:        res.Gaps,
		}
		if res.State != scenario.StatePassed {
			jr.Category = res.Category.String()
			jr.Error = failure(res)
			if res.StepIndex >= 0 {
				n := res.StepIndex + 1
				jr.Step, jr.StepNumber = res.Step, &n
			}
		}
		doc.Results = append(doc.Results, jr)
	}
	doc.Summary.Passed, doc.Summary.Failed = r.counts()
	doc.Summary.Total = doc.Summary.Passed + doc.Summary.Failed

	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	return finish(r.w, r.logger, enc.Encode(doc))
}
