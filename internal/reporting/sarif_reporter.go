// internal/reporting/sarif_reporter.go
package reporting

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/signin-e2e/internal/reporting/sarif"
	"github.com/xkilldash9x/signin-e2e/internal/scenario"
)

// Constants for tool identification in the SARIF report.
const (
	ToolName     = "signin-e2e"
	ToolInfoURI  = "https://github.com/xkilldash9x/signin-e2e"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
)

// ruleIDSanitizer replaces characters not allowed in SARIF rule IDs. Runs of
// them collapse into a single hyphen.
var ruleIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.]+`)

// SARIFReporter implements the Reporter interface for the SARIF 2.1.0 format.
// Every scenario written becomes a rule; every failed one also becomes an
// error result. It is safe for concurrent use.
type SARIFReporter struct {
	writer io.WriteCloser
	logger *zap.Logger
	log    *sarif.Log
	// mu protects the log structure and ruleIndex.
	mu        sync.Mutex
	ruleIndex map[string]int
	passed    int
	failed    int
}

// NewSARIFReporter creates a new reporter that writes SARIF output.
func NewSARIFReporter(writer io.WriteCloser, logger *zap.Logger, opts Options) *SARIFReporter {
	version := opts.ToolVersion
	if version == "" {
		version = "dev"
	}
	run := &sarif.Run{
		Tool: &sarif.Tool{
			Driver: &sarif.ToolComponent{
				Name:           ToolName,
				Version:        pString(version),
				InformationURI: pString(ToolInfoURI),
				Rules:          []*sarif.ReportingDescriptor{},
			},
		},
		Results: []*sarif.Result{},
	}
	if opts.RunID != "" {
		run.AutomationDetails = &sarif.RunAutomationDetails{ID: opts.Suite + "/" + opts.RunID}
	}
	return &SARIFReporter{
		writer:    writer,
		logger:    logger.Named("sarif"),
		log:       &sarif.Log{Version: SARIFVersion, Schema: SARIFSchema, Runs: []*sarif.Run{run}},
		ruleIndex: make(map[string]int),
	}
}

// Write registers the scenario as a rule and records a result if it failed.
func (r *SARIFReporter) Write(res *scenario.Result) error {
	if res == nil {
		return fmt.Errorf("nil result")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	ruleID, idx := r.ensureRule(res)
	if res.State == scenario.StatePassed {
		r.passed++
		return nil
	}
	r.failed++

	props := sarif.PropertyBag{
		"category":    res.Category.String(),
		"duration_ms": res.Duration.Milliseconds(),
	}
	sr := &sarif.Result{
		RuleID:     ruleID,
		RuleIndex:  idx,
		Message:    &sarif.Message{Text: pString(failure(res))},
		Level:      sarif.LevelError,
		Locations:  r.createLocations(res),
		Properties: &props,
	}
	run := r.log.Runs[0]
	run.Results = append(run.Results, sr)
	r.logger.Debug("Recorded SARIF result.", zap.String("rule_id", ruleID))
	return nil
}

// Close finalizes the SARIF log and writes it to the output writer.
func (r *SARIFReporter) Close() error {
	startTime := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.log.Runs[0]
	run.Properties = &sarif.PropertyBag{"passed": r.passed, "failed": r.failed}
	r.logger.Info("Finalizing SARIF report.",
		zap.Int("total_results", len(run.Results)),
		zap.Int("total_rules", len(run.Tool.Driver.Rules)),
	)

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	if err := finish(r.writer, r.logger, encoder.Encode(r.log)); err != nil {
		return err
	}
	r.logger.Debug("Wrote SARIF report.", zap.Duration("duration", time.Since(startTime)))
	return nil
}

// sanitizeRuleName turns a scenario tag into a rule ID.
func sanitizeRuleName(tag string) string {
	id := strings.Trim(ruleIDSanitizer.ReplaceAllString(strings.ToUpper(tag), "-"), "-")
	if id == "" {
		return "UNNAMED-SCENARIO"
	}
	return id
}

// ensureRule returns the rule ID and index for the scenario, registering it on
// first sight. Must be called while holding the mutex.
func (r *SARIFReporter) ensureRule(res *scenario.Result) (string, int) {
	id := sanitizeRuleName(res.Tag)
	if idx, ok := r.ruleIndex[id]; ok {
		return id, idx
	}

	driver := r.log.Runs[0].Tool.Driver
	help := fmt.Sprintf("**Scenario:** %s\n\n%s", res.Tag, res.Description)
	if len(res.Gaps) > 0 {
		help += "\n\n**Not checked:**\n- " + strings.Join(res.Gaps, "\n- ")
	}
	rule := &sarif.ReportingDescriptor{
		ID:               id,
		Name:             pString(res.Tag),
		ShortDescription: &sarif.MultiformatMessageString{Text: pString(res.Description)},
		FullDescription:  &sarif.MultiformatMessageString{Text: pString(res.Description)},
		Help: &sarif.MultiformatMessageString{
			Text:     pString(res.Description),
			Markdown: pString(help),
		},
		Properties: &sarif.PropertyBag{
			"tags": []string{"e2e", res.Kind.String()},
		},
	}
	driver.Rules = append(driver.Rules, rule)
	r.ruleIndex[id] = len(driver.Rules) - 1
	return id, r.ruleIndex[id]
}

// createLocations points the result at the failing step, or at the scenario
// when it failed outside a step.
func (r *SARIFReporter) createLocations(res *scenario.Result) []*sarif.Location {
	name, fqn, kind := res.Tag, res.Tag, "scenario"
	if res.StepIndex >= 0 {
		name = res.Step
		fqn = fmt.Sprintf("%s/step/%d", res.Tag, res.StepIndex+1)
		kind = "step"
	}
	return []*sarif.Location{{
		LogicalLocations: []*sarif.LogicalLocation{{
			Name:               pString(name),
			FullyQualifiedName: pString(fqn),
			Kind:               pString(kind),
		}},
		Message: &sarif.Message{Text: pString(res.Description)},
	}}
}

// pString returns a pointer to the given string value.
func pString(s string) *string {
	return &s
}
