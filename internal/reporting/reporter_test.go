package reporting

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/signin-e2e/internal/reporting/sarif"
	"github.com/xkilldash9x/signin-e2e/internal/scenario"
)

// bufferCloser captures output and simulates I/O errors.
type bufferCloser struct {
	bytes.Buffer
	failWrite bool
	failClose bool
	closed    bool
}

func (b *bufferCloser) Write(p []byte) (int, error) {
	if b.failWrite {
		return 0, errors.New("simulated write error")
	}
	return b.Buffer.Write(p)
}

func (b *bufferCloser) WriteString(s string) (int, error) {
	if b.failWrite {
		return 0, errors.New("simulated write error")
	}
	return b.Buffer.WriteString(s)
}

func (b *bufferCloser) Close() error {
	b.closed = true
	if b.failClose {
		return errors.New("simulated close error")
	}
	return nil
}

var testOpts = Options{
	RunID:       "8f14e45f-ceea-467f-a0e6-4c1f5f6d0b0a",
	Suite:       "signin",
	Started:     time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC),
	ToolVersion: "v1.2.3-test",
	NoColor:     true,
}

func results() []*scenario.Result {
	return []*scenario.Result{
		{
			Tag:         "T_08",
			Description: "Fails request to token API with empty email",
			Kind:        scenario.KindAPI,
			State:       scenario.StatePassed,
			StepIndex:   -1,
			Duration:    120 * time.Millisecond,
		},
		{
			Tag:         "T_05",
			Description: "Shows an error when trying to sign-in with invalid password",
			Kind:        scenario.KindUI,
			State:       scenario.StateFailed,
			Step:        "expect @signinRequest status 401",
			StepIndex:   9,
			Err: &scenario.StepError{Scenario: "T_05", Index: 9, Step: "expect @signinRequest status 401",
				Err: &scenario.AssertionError{Subject: "@signinRequest status", Expected: "401", Actual: "500 Internal Server Error"}},
			Category: scenario.CategoryAssertion,
			Duration: 2 * time.Second,
		},
		{
			Tag:         "T_10",
			Description: "Fails request to token API without email",
			Kind:        scenario.KindAPI,
			State:       scenario.StatePassed,
			StepIndex:   -1,
			Gaps:        []string{"message is not checked"},
		},
	}
}

func writeAll(t *testing.T, r Reporter) {
	t.Helper()
	for _, res := range results() {
		require.NoError(t, r.Write(res))
	}
	require.NoError(t, r.Close())
}

func TestNew(t *testing.T) {
	logger := zaptest.NewLogger(t)

	_, err := New(FormatText, "", nil, testOpts)
	assert.ErrorContains(t, err, "logger cannot be nil")

	_, err = New("html", "", logger, testOpts)
	assert.ErrorContains(t, err, "unsupported output format: html")

	for _, format := range Formats {
		t.Run(format, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "nested", "report."+format)
			r, err := New(format, out, logger, testOpts)
			require.NoError(t, err)
			writeAll(t, r)
			info, err := os.Stat(out)
			require.NoError(t, err)
			assert.Positive(t, info.Size())
		})
	}

	for _, path := range []string{"", "stdout"} {
		r, err := New(FormatJSON, path, logger, testOpts)
		require.NoError(t, err)
		jr := r.(*JSONReporter)
		_, ok := jr.w.(*nopWriteCloser)
		assert.True(t, ok, "stdout is wrapped so Close leaves it open")
	}
}

func TestNewExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
	r, err := New(FormatJUnit, "~/reports/junit.xml", zaptest.NewLogger(t), testOpts)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.FileExists(t, filepath.Join(home, "reports", "junit.xml"))
}

func TestTextReporter(t *testing.T) {
	var buf bufferCloser
	writeAll(t, NewTextReporter(&buf, testOpts))
	out := buf.String()

	assert.Contains(t, out, "PASS  T_08  Fails request to token API with empty email (api, 120ms)")
	assert.Contains(t, out, "FAIL  T_05")
	assert.Contains(t, out, `T_05 step 10 (expect @signinRequest status 401): expected @signinRequest status to be "401", got "500 Internal Server Error"`)
	assert.Contains(t, out, "category: assertion")
	assert.Contains(t, out, "not checked: message is not checked")
	assert.Contains(t, out, "signin: 3 scenarios, 2 passed, 1 failed run "+testOpts.RunID)
	assert.NotContains(t, out, "\x1b[", "no escape codes without color")
	assert.True(t, buf.closed)
}

func TestTextReporterWriteError(t *testing.T) {
	buf := &bufferCloser{failWrite: true}
	r := NewTextReporter(buf, testOpts)
	assert.ErrorContains(t, r.Write(results()[0]), "simulated write error")
	assert.Error(t, r.Close(), "the first write error is sticky")
	assert.True(t, buf.closed)
}

func TestJSONReporter(t *testing.T) {
	var buf bufferCloser
	writeAll(t, NewJSONReporter(&buf, zaptest.NewLogger(t), testOpts))

	var doc JSONDocument
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, testOpts.RunID, doc.RunID)
	assert.Equal(t, "signin", doc.Suite)
	assert.Equal(t, JSONSummary{Total: 3, Passed: 2, Failed: 1}, doc.Summary)

	require.Len(t, doc.Results, 3)
	assert.Equal(t, []string{"T_05", "T_08", "T_10"},
		[]string{doc.Results[0].Tag, doc.Results[1].Tag, doc.Results[2].Tag}, "results are in tag order")

	failed := doc.Results[0]
	assert.Equal(t, "failed", failed.State)
	assert.Equal(t, "assertion", failed.Category)
	require.NotNil(t, failed.StepNumber)
	assert.Equal(t, 10, *failed.StepNumber)
	assert.Equal(t, int64(2000), failed.DurationMS)

	passed := doc.Results[1]
	assert.Empty(t, passed.Category)
	assert.Nil(t, passed.StepNumber)
	assert.Equal(t, []string{"message is not checked"}, doc.Results[2].Gaps)
}

func TestJSONReporterCloseErrors(t *testing.T) {
	buf := &bufferCloser{failClose: true}
	err := NewJSONReporter(buf, zaptest.NewLogger(t), testOpts).Close()
	assert.ErrorContains(t, err, "failed to close output writer")

	buf = &bufferCloser{failWrite: true, failClose: true}
	err = NewJSONReporter(buf, zaptest.NewLogger(t), testOpts).Close()
	assert.ErrorContains(t, err, "failed to encode report", "encoding errors win")
	assert.True(t, buf.closed)
}

func TestJUnitReporter(t *testing.T) {
	var buf bufferCloser
	writeAll(t, NewJUnitReporter(&buf, zaptest.NewLogger(t), testOpts))

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(buf.Bytes()))
	suite := doc.FindElement("/testsuites/testsuite")
	require.NotNil(t, suite)
	assert.Equal(t, "3", suite.SelectAttrValue("tests", ""))
	assert.Equal(t, "1", suite.SelectAttrValue("failures", ""))
	assert.Equal(t, testOpts.RunID, suite.SelectAttrValue("id", ""))
	assert.Equal(t, "2026-10-14T09:30:00", suite.SelectAttrValue("timestamp", ""))

	cases := suite.SelectElements("testcase")
	require.Len(t, cases, 3)
	assert.True(t, strings.HasPrefix(cases[0].SelectAttrValue("name", ""), "T_05 "))
	assert.Equal(t, "signin.ui", cases[0].SelectAttrValue("classname", ""))
	assert.Equal(t, "2.000", cases[0].SelectAttrValue("time", ""))

	f := cases[0].SelectElement("failure")
	require.NotNil(t, f)
	assert.Equal(t, "assertion", f.SelectAttrValue("type", ""))
	assert.Contains(t, f.Text(), "500 Internal Server Error")
	assert.Nil(t, cases[1].SelectElement("failure"))
	require.NotNil(t, cases[2].SelectElement("system-out"))
	assert.Equal(t, "not checked: message is not checked", cases[2].SelectElement("system-out").Text())
}

func TestSARIFReporter(t *testing.T) {
	var buf bufferCloser
	writeAll(t, NewSARIFReporter(&buf, zaptest.NewLogger(t), testOpts))

	var log sarif.Log
	require.NoError(t, json.Unmarshal(buf.Bytes(), &log))
	assert.Equal(t, SARIFVersion, log.Version)
	assert.Equal(t, SARIFSchema, log.Schema)
	require.Len(t, log.Runs, 1)
	run := log.Runs[0]
	assert.Equal(t, "v1.2.3-test", *run.Tool.Driver.Version)
	assert.Equal(t, "signin/"+testOpts.RunID, run.AutomationDetails.ID)

	require.Len(t, run.Tool.Driver.Rules, 3, "one rule per scenario")
	assert.Equal(t, "T_08", run.Tool.Driver.Rules[0].ID)

	require.Len(t, run.Results, 1, "one result per failure")
	res := run.Results[0]
	assert.Equal(t, "T_05", res.RuleID)
	assert.Equal(t, 1, res.RuleIndex)
	assert.Equal(t, sarif.LevelError, res.Level)
	assert.Contains(t, *res.Message.Text, "500 Internal Server Error")
	loc := res.Locations[0].LogicalLocations[0]
	assert.Equal(t, "T_05/step/10", *loc.FullyQualifiedName)
	assert.Equal(t, "step", *loc.Kind)
	assert.Equal(t, "assertion", (*res.Properties)["category"])
}

func TestSARIFRuleIDs(t *testing.T) {
	for in, want := range map[string]string{
		"T_05":        "T_05",
		"smoke test!": "SMOKE-TEST",
		"***":         "UNNAMED-SCENARIO",
	} {
		assert.Equal(t, want, sanitizeRuleName(in), fmt.Sprintf("%q", in))
	}

	var buf bufferCloser
	r := NewSARIFReporter(&buf, zaptest.NewLogger(t), Options{})
	res := results()[1]
	require.NoError(t, r.Write(res))
	require.NoError(t, r.Write(res))
	assert.Len(t, r.log.Runs[0].Tool.Driver.Rules, 1, "a tag registers one rule")
	assert.Len(t, r.log.Runs[0].Results, 2)
	assert.Nil(t, r.log.Runs[0].AutomationDetails)
	assert.Error(t, r.Write(nil))
}
