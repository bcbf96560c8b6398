// internal/scenario/steps_api.go
package scenario

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/go-cmp/cmp"
	jsoniter "github.com/json-iterator/go"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/xkilldash9x/signin-e2e/internal/capture"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Body is a JSON object whose fields are resolved when the request is sent.
// A field left out of the map is omitted from the request.
type Body map[string]Value

func (b Body) resolve(rt *Runtime) (map[string]string, error) {
	out := make(map[string]string, len(b))
	for k, v := range b {
		s, err := v.Resolve(rt)
		if err != nil {
			return nil, err
		}
		out[k] = s
	}
	return out, nil
}

func (b Body) String() string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+b[k].String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

type requestStep struct {
	alias    string
	method   string
	endpoint string
	body     Body
}

// Request sends a direct API request and records the exchange as alias. A
// nil body sends no payload.
func Request(alias, method, endpoint string, body Body) Step {
	return requestStep{alias: alias, method: strings.ToUpper(method), endpoint: endpoint, body: body}
}

func (s requestStep) Describe() string {
	if s.body == nil {
		return fmt.Sprintf("%s %s as @%s", s.method, s.endpoint, s.alias)
	}
	return fmt.Sprintf("%s %s %s as @%s", s.method, s.endpoint, s.body, s.alias)
}

func (s requestStep) producesAlias() string { return s.alias }

func (s requestStep) Timeout(rt *Runtime) time.Duration { return rt.RequestTimeout }

func (s requestStep) Preflight(rt *Runtime) error {
	if _, err := rt.Endpoint(s.endpoint); err != nil {
		return err
	}
	_, err := s.body.resolve(rt)
	return err
}

func (s requestStep) Run(ctx context.Context, rt *Runtime) error {
	if rt.API == nil {
		return configErr("no API client configured", nil)
	}
	url, err := rt.Endpoint(s.endpoint)
	if err != nil {
		return err
	}
	var payload any
	if s.body != nil {
		fields, err := s.body.resolve(rt)
		if err != nil {
			return err
		}
		payload = fields
	}
	ex, err := rt.API.Do(ctx, s.alias, s.method, url, payload)
	if err != nil {
		return deadlineErr(ctx, "response from "+url, err)
	}
	rt.Record(ex)
	rt.Logger.Debug("Recorded exchange.", zap.String("alias", s.alias), zap.Int("status", ex.Response.Status))
	return nil
}

// exchangeStep is embedded by the assertions on a recorded exchange.
type exchangeStep struct{ alias string }

func (s exchangeStep) consumesAlias() string { return s.alias }

func (s exchangeStep) Timeout(rt *Runtime) time.Duration { return rt.RequestTimeout }

func (s exchangeStep) exchange(ctx context.Context, rt *Runtime) (*capture.Exchange, error) {
	ex, err := rt.Exchange(ctx, s.alias)
	if err != nil {
		return nil, deadlineErr(ctx, "network call @"+s.alias, err)
	}
	return ex, nil
}

type expectStatusStep struct {
	exchangeStep
	code int
}

// ExpectStatus asserts the response status code.
func ExpectStatus(alias string, code int) Step {
	return expectStatusStep{exchangeStep: exchangeStep{alias}, code: code}
}

func (s expectStatusStep) Describe() string {
	return fmt.Sprintf("expect @%s status %d", s.alias, s.code)
}

func (s expectStatusStep) Run(ctx context.Context, rt *Runtime) error {
	ex, err := s.exchange(ctx, rt)
	if err != nil {
		return err
	}
	if ex.Response.Status == s.code {
		return nil
	}
	actual := fmt.Sprintf("%d %s", ex.Response.Status, http.StatusText(ex.Response.Status))
	if ex.Failed != "" {
		actual = "no response: " + ex.Failed
	}
	return &AssertionError{
		Subject:  "status of @" + s.alias,
		Expected: fmt.Sprintf("%d %s", s.code, http.StatusText(s.code)),
		Actual:   actual,
	}
}

type expectMethodStep struct {
	exchangeStep
	method string
}

// ExpectMethod asserts the request method.
func ExpectMethod(alias, method string) Step {
	return expectMethodStep{exchangeStep: exchangeStep{alias}, method: strings.ToUpper(method)}
}

func (s expectMethodStep) Describe() string {
	return fmt.Sprintf("expect @%s method %s", s.alias, s.method)
}

func (s expectMethodStep) Run(ctx context.Context, rt *Runtime) error {
	ex, err := s.exchange(ctx, rt)
	if err != nil {
		return err
	}
	if strings.EqualFold(ex.Request.Method, s.method) {
		return nil
	}
	return &AssertionError{Subject: "method of @" + s.alias, Expected: s.method, Actual: ex.Request.Method}
}

type expectHeaderStep struct {
	exchangeStep
	name string
	want Value
}

// ExpectHeader asserts a response header value.
func ExpectHeader(alias, name string, want Value) Step {
	return expectHeaderStep{exchangeStep: exchangeStep{alias}, name: name, want: want}
}

func (s expectHeaderStep) Describe() string {
	return fmt.Sprintf("expect @%s header %s to be %s", s.alias, s.name, s.want)
}

func (s expectHeaderStep) Preflight(rt *Runtime) error {
	_, err := s.want.Resolve(rt)
	return err
}

func (s expectHeaderStep) Run(ctx context.Context, rt *Runtime) error {
	ex, err := s.exchange(ctx, rt)
	if err != nil {
		return err
	}
	want, err := s.want.Resolve(rt)
	if err != nil {
		return err
	}
	if got := ex.Header(s.name); got != want {
		return &AssertionError{Subject: fmt.Sprintf("header %s of @%s", s.name, s.alias), Expected: want, Actual: got}
	}
	return nil
}

// fieldString renders a decoded JSON value for comparison with a string.
func fieldString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func assertField(subject, field string, obj map[string]any, want Value, resolved string) error {
	got, ok := obj[field]
	if !ok {
		return &ShapeError{
			AssertionError: AssertionError{Subject: subject, Expected: "field " + field},
			Missing:        []string{field},
		}
	}
	if actual := fieldString(got); actual != resolved {
		return &AssertionError{
			Subject:  fmt.Sprintf("%s field %s", subject, field),
			Expected: redact(want, resolved),
			Actual:   redact(want, actual),
		}
	}
	return nil
}

type expectBodyFieldStep struct {
	exchangeStep
	field string
	want  Value
}

// ExpectBodyField asserts a top-level field of the JSON response body.
func ExpectBodyField(alias, field string, want Value) Step {
	return expectBodyFieldStep{exchangeStep: exchangeStep{alias}, field: field, want: want}
}

func (s expectBodyFieldStep) Describe() string {
	return fmt.Sprintf("expect @%s body.%s to be %s", s.alias, s.field, s.want)
}

func (s expectBodyFieldStep) Preflight(rt *Runtime) error {
	_, err := s.want.Resolve(rt)
	return err
}

func (s expectBodyFieldStep) Run(ctx context.Context, rt *Runtime) error {
	ex, err := s.exchange(ctx, rt)
	if err != nil {
		return err
	}
	want, err := s.want.Resolve(rt)
	if err != nil {
		return err
	}
	subject := "response body of @" + s.alias
	body, err := ex.JSON()
	if err != nil {
		return &ShapeError{AssertionError: AssertionError{Subject: subject, Actual: err.Error()}}
	}
	return assertField(subject, s.field, body, s.want, want)
}

type expectRequestFieldStep struct {
	exchangeStep
	field string
	want  Value
}

// ExpectRequestField asserts a top-level field of the JSON request body.
func ExpectRequestField(alias, field string, want Value) Step {
	return expectRequestFieldStep{exchangeStep: exchangeStep{alias}, field: field, want: want}
}

func (s expectRequestFieldStep) Describe() string {
	return fmt.Sprintf("expect @%s request.%s to be %s", s.alias, s.field, s.want)
}

func (s expectRequestFieldStep) Preflight(rt *Runtime) error {
	_, err := s.want.Resolve(rt)
	return err
}

func (s expectRequestFieldStep) Run(ctx context.Context, rt *Runtime) error {
	ex, err := s.exchange(ctx, rt)
	if err != nil {
		return err
	}
	want, err := s.want.Resolve(rt)
	if err != nil {
		return err
	}
	subject := "request body of @" + s.alias
	body, err := ex.RequestJSON()
	if err != nil {
		return &ShapeError{AssertionError: AssertionError{Subject: subject, Actual: err.Error()}}
	}
	return assertField(subject, s.field, body, s.want, want)
}

type expectBodyKeysStep struct {
	exchangeStep
	keys []string
}

// ExpectBodyKeys asserts that the JSON response body has exactly these
// top-level keys. The body must not be null.
func ExpectBodyKeys(alias string, keys ...string) Step {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	return expectBodyKeysStep{exchangeStep: exchangeStep{alias}, keys: sorted}
}

func (s expectBodyKeysStep) Describe() string {
	return fmt.Sprintf("expect @%s body keys [%s]", s.alias, strings.Join(s.keys, ", "))
}

func (s expectBodyKeysStep) Run(ctx context.Context, rt *Runtime) error {
	ex, err := s.exchange(ctx, rt)
	if err != nil {
		return err
	}
	subject := "response body of @" + s.alias
	body, err := ex.JSON()
	if err != nil {
		return &ShapeError{AssertionError: AssertionError{Subject: subject, Actual: err.Error()}}
	}
	got := make([]string, 0, len(body))
	for k := range body {
		got = append(got, k)
	}
	sort.Strings(got)
	diff := cmp.Diff(s.keys, got)
	if diff == "" {
		return nil
	}
	missing, extra := keyDelta(s.keys, got)
	return &ShapeError{
		AssertionError: AssertionError{
			Subject:  subject,
			Expected: strings.Join(s.keys, ", "),
			Actual:   strings.Join(got, ", "),
		},
		Missing: missing,
		Extra:   extra,
		Diff:    "keys (-want +got):\n" + diff,
	}
}

func keyDelta(want, got []string) (missing, extra []string) {
	in := func(list []string, k string) bool {
		i := sort.SearchStrings(list, k)
		return i < len(list) && list[i] == k
	}
	for _, k := range want {
		if !in(got, k) {
			missing = append(missing, k)
		}
	}
	for _, k := range got {
		if !in(want, k) {
			extra = append(extra, k)
		}
	}
	return missing, extra
}

type expectBodySchemaStep struct {
	exchangeStep
	name   string
	schema []byte

	once     sync.Once
	compiled *gojsonschema.Schema
	err      error
}

// ExpectBodySchema validates the JSON response body against a JSON Schema.
// The schema is compiled once, on first use.
func ExpectBodySchema(alias, name string, schema []byte) Step {
	return &expectBodySchemaStep{exchangeStep: exchangeStep{alias}, name: name, schema: schema}
}

func (s *expectBodySchemaStep) Describe() string {
	return fmt.Sprintf("expect @%s body to match schema %s", s.alias, s.name)
}

func (s *expectBodySchemaStep) compile() (*gojsonschema.Schema, error) {
	s.once.Do(func() {
		s.compiled, s.err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(s.schema))
	})
	return s.compiled, s.err
}

func (s *expectBodySchemaStep) Preflight(*Runtime) error {
	if _, err := s.compile(); err != nil {
		return configErr(fmt.Sprintf("schema %s does not compile", s.name), err)
	}
	return nil
}

func (s *expectBodySchemaStep) Run(ctx context.Context, rt *Runtime) error {
	schema, err := s.compile()
	if err != nil {
		return configErr(fmt.Sprintf("schema %s does not compile", s.name), err)
	}
	ex, err := s.exchange(ctx, rt)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("response body of @%s against %s", s.alias, s.name)
	result, err := schema.Validate(gojsonschema.NewBytesLoader(ex.Response.Body))
	if err != nil {
		return &ShapeError{AssertionError: AssertionError{Subject: subject, Actual: err.Error()}}
	}
	if result.Valid() {
		return nil
	}
	violations := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		violations = append(violations, e.String())
	}
	return &ShapeError{AssertionError: AssertionError{Subject: subject, Actual: strings.Join(violations, "; ")}}
}
