// internal/scenario/steps_ui.go
package scenario

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/signin-e2e/internal/capture"
)

// aliasProducer and aliasConsumer let preflight check that every alias is
// registered by an earlier step.
type aliasProducer interface{ producesAlias() string }
type aliasConsumer interface{ consumesAlias() string }

// -- navigation and input --

type visitStep struct{ endpoint string }

// Visit loads the page behind a logical endpoint.
func Visit(endpoint string) Step { return visitStep{endpoint: endpoint} }

func (s visitStep) Describe() string { return "visit " + s.endpoint }

func (s visitStep) Preflight(rt *Runtime) error {
	_, err := rt.Endpoint(s.endpoint)
	return err
}

func (s visitStep) Timeout(rt *Runtime) time.Duration { return rt.NavigationTimeout }

func (s visitStep) Run(ctx context.Context, rt *Runtime) error {
	page, err := rt.page()
	if err != nil {
		return err
	}
	url, err := rt.Endpoint(s.endpoint)
	if err != nil {
		return err
	}
	rt.Logger.Debug("Visiting page.", zap.String("endpoint", s.endpoint), zap.String("url", url))
	return deadlineErr(ctx, "page load of "+url, page.Navigate(ctx, url))
}

type typeStep struct {
	selector string
	text     Value
}

// Type enters text into the element behind a selector key.
func Type(selector string, text Value) Step { return typeStep{selector: selector, text: text} }

func (s typeStep) Describe() string { return fmt.Sprintf("type %s into %s", s.text, s.selector) }

func (s typeStep) Preflight(rt *Runtime) error {
	if _, err := rt.Selector(s.selector); err != nil {
		return err
	}
	_, err := s.text.Resolve(rt)
	return err
}

func (s typeStep) Run(ctx context.Context, rt *Runtime) error {
	page, err := rt.page()
	if err != nil {
		return err
	}
	sel, err := rt.Selector(s.selector)
	if err != nil {
		return err
	}
	text, err := s.text.Resolve(rt)
	if err != nil {
		return err
	}
	return deadlineErr(ctx, "element "+s.selector+" to accept input", page.Type(ctx, sel, text))
}

type clickStep struct{ selector string }

// Click clicks the element behind a selector key.
func Click(selector string) Step { return clickStep{selector: selector} }

func (s clickStep) Describe() string { return "click " + s.selector }

func (s clickStep) Preflight(rt *Runtime) error {
	_, err := rt.Selector(s.selector)
	return err
}

func (s clickStep) Run(ctx context.Context, rt *Runtime) error {
	page, err := rt.page()
	if err != nil {
		return err
	}
	sel, err := rt.Selector(s.selector)
	if err != nil {
		return err
	}
	return deadlineErr(ctx, "element "+s.selector+" to be clickable", page.Click(ctx, sel))
}

type waitForStep struct{ selector string }

// WaitFor blocks until the selector matches an element.
func WaitFor(selector string) Step { return waitForStep{selector: selector} }

func (s waitForStep) Describe() string { return "wait for " + s.selector }

func (s waitForStep) Preflight(rt *Runtime) error {
	_, err := rt.Selector(s.selector)
	return err
}

func (s waitForStep) Run(ctx context.Context, rt *Runtime) error {
	page, err := rt.page()
	if err != nil {
		return err
	}
	sel, err := rt.Selector(s.selector)
	if err != nil {
		return err
	}
	return deadlineErr(ctx, "element "+s.selector+" to exist", page.WaitPresent(ctx, sel))
}

type expectGoneStep struct{ selector string }

// ExpectGone blocks until the selector matches nothing.
func ExpectGone(selector string) Step { return expectGoneStep{selector: selector} }

func (s expectGoneStep) Describe() string { return "expect " + s.selector + " to not exist" }

func (s expectGoneStep) Preflight(rt *Runtime) error {
	_, err := rt.Selector(s.selector)
	return err
}

func (s expectGoneStep) Run(ctx context.Context, rt *Runtime) error {
	page, err := rt.page()
	if err != nil {
		return err
	}
	sel, err := rt.Selector(s.selector)
	if err != nil {
		return err
	}
	return deadlineErr(ctx, "element "+s.selector+" to not exist", page.WaitGone(ctx, sel))
}

// -- DOM assertions --

type expectTextStep struct {
	selector string
	text     Value
}

// ExpectText asserts that an element behind the selector key contains the
// text and is visible.
func ExpectText(selector string, text Value) Step {
	return expectTextStep{selector: selector, text: text}
}

func (s expectTextStep) Describe() string {
	return fmt.Sprintf("expect %s to show %s", s.selector, s.text)
}

func (s expectTextStep) Preflight(rt *Runtime) error {
	if _, err := rt.Selector(s.selector); err != nil {
		return err
	}
	_, err := s.text.Resolve(rt)
	return err
}

func (s expectTextStep) Run(ctx context.Context, rt *Runtime) error {
	page, err := rt.page()
	if err != nil {
		return err
	}
	sel, err := rt.Selector(s.selector)
	if err != nil {
		return err
	}
	want, err := s.text.Resolve(rt)
	if err != nil {
		return err
	}
	ok, out := poll(ctx, rt.PollInterval, func(ctx context.Context) (string, bool, error) {
		m, err := page.TextVisible(ctx, sel, want)
		if err != nil {
			return "", false, err
		}
		actual := m.Text
		if m.Found && !m.Visible {
			actual = "(hidden) " + actual
		}
		return actual, m.Found && m.Visible, nil
	})
	if ok {
		return nil
	}
	return out.failure(ctx, "element "+s.selector, &AssertionError{
		Subject:  "text of " + s.selector,
		Relation: "visibly contain",
		Expected: want,
	})
}

type expectNoTextStep struct{ selector string }

// ExpectNoText asserts that nothing behind the selector key is visible.
func ExpectNoText(selector string) Step { return expectNoTextStep{selector: selector} }

func (s expectNoTextStep) Describe() string { return "expect " + s.selector + " to show nothing" }

func (s expectNoTextStep) Preflight(rt *Runtime) error {
	_, err := rt.Selector(s.selector)
	return err
}

func (s expectNoTextStep) Run(ctx context.Context, rt *Runtime) error {
	page, err := rt.page()
	if err != nil {
		return err
	}
	sel, err := rt.Selector(s.selector)
	if err != nil {
		return err
	}
	ok, out := poll(ctx, rt.PollInterval, func(ctx context.Context) (string, bool, error) {
		text, err := page.VisibleText(ctx, sel)
		return text, err == nil && text == "", err
	})
	if ok {
		return nil
	}
	return out.failure(ctx, "element "+s.selector+" to be hidden", &AssertionError{
		Subject:  "visible text of " + s.selector,
		Expected: "",
	})
}

type expectCSSStep struct {
	selector string
	property string
	want     Value
}

// ExpectCSS asserts the computed value of a CSS property.
func ExpectCSS(selector, property string, want Value) Step {
	return expectCSSStep{selector: selector, property: property, want: want}
}

func (s expectCSSStep) Describe() string {
	return fmt.Sprintf("expect %s css %s to be %s", s.selector, s.property, s.want)
}

func (s expectCSSStep) Preflight(rt *Runtime) error {
	if _, err := rt.Selector(s.selector); err != nil {
		return err
	}
	_, err := s.want.Resolve(rt)
	return err
}

func (s expectCSSStep) Run(ctx context.Context, rt *Runtime) error {
	page, err := rt.page()
	if err != nil {
		return err
	}
	sel, err := rt.Selector(s.selector)
	if err != nil {
		return err
	}
	want, err := s.want.Resolve(rt)
	if err != nil {
		return err
	}
	ok, out := poll(ctx, rt.PollInterval, func(ctx context.Context) (string, bool, error) {
		v, err := page.ComputedStyle(ctx, sel, s.property)
		return v, err == nil && v == want, err
	})
	if ok {
		return nil
	}
	return out.failure(ctx, "element "+s.selector, &AssertionError{
		Subject:  fmt.Sprintf("css %s of %s", s.property, s.selector),
		Expected: want,
	})
}

type expectNoCSSStep struct {
	selector string
	property string
	unwanted Value
}

// ExpectNoCSS asserts that a CSS property does not have the given computed
// value, such as an error border on a field that passed validation.
func ExpectNoCSS(selector, property string, unwanted Value) Step {
	return expectNoCSSStep{selector: selector, property: property, unwanted: unwanted}
}

func (s expectNoCSSStep) Describe() string {
	return fmt.Sprintf("expect %s css %s not to be %s", s.selector, s.property, s.unwanted)
}

func (s expectNoCSSStep) Preflight(rt *Runtime) error {
	if _, err := rt.Selector(s.selector); err != nil {
		return err
	}
	_, err := s.unwanted.Resolve(rt)
	return err
}

func (s expectNoCSSStep) Run(ctx context.Context, rt *Runtime) error {
	page, err := rt.page()
	if err != nil {
		return err
	}
	sel, err := rt.Selector(s.selector)
	if err != nil {
		return err
	}
	unwanted, err := s.unwanted.Resolve(rt)
	if err != nil {
		return err
	}
	ok, out := poll(ctx, rt.PollInterval, func(ctx context.Context) (string, bool, error) {
		v, err := page.ComputedStyle(ctx, sel, s.property)
		return v, err == nil && v != unwanted, err
	})
	if ok {
		return nil
	}
	return out.failure(ctx, "element "+s.selector, &AssertionError{
		Subject:  fmt.Sprintf("css %s of %s", s.property, s.selector),
		Expected: "anything but " + unwanted,
	})
}

type expectAttrStep struct {
	selector string
	attr     string
	want     Value
}

// ExpectAttr asserts an attribute value.
func ExpectAttr(selector, attr string, want Value) Step {
	return expectAttrStep{selector: selector, attr: attr, want: want}
}

func (s expectAttrStep) Describe() string {
	return fmt.Sprintf("expect %s [%s] to be %s", s.selector, s.attr, s.want)
}

func (s expectAttrStep) Preflight(rt *Runtime) error {
	if _, err := rt.Selector(s.selector); err != nil {
		return err
	}
	_, err := s.want.Resolve(rt)
	return err
}

func (s expectAttrStep) Run(ctx context.Context, rt *Runtime) error {
	page, err := rt.page()
	if err != nil {
		return err
	}
	sel, err := rt.Selector(s.selector)
	if err != nil {
		return err
	}
	want, err := s.want.Resolve(rt)
	if err != nil {
		return err
	}
	ok, out := poll(ctx, rt.PollInterval, func(ctx context.Context) (string, bool, error) {
		v, present, err := page.Attribute(ctx, sel, s.attr)
		if err != nil {
			return "", false, err
		}
		if !present {
			return "(absent)", false, nil
		}
		return v, v == want, nil
	})
	if ok {
		return nil
	}
	return out.failure(ctx, "element "+s.selector, &AssertionError{
		Subject:  fmt.Sprintf("attribute %s of %s", s.attr, s.selector),
		Expected: want,
	})
}

type expectValueStep struct {
	selector string
	want     Value
}

// ExpectValue asserts the current value of a form control.
func ExpectValue(selector string, want Value) Step {
	return expectValueStep{selector: selector, want: want}
}

func (s expectValueStep) Describe() string {
	return fmt.Sprintf("expect %s value to be %s", s.selector, s.want)
}

func (s expectValueStep) Preflight(rt *Runtime) error {
	if _, err := rt.Selector(s.selector); err != nil {
		return err
	}
	_, err := s.want.Resolve(rt)
	return err
}

func (s expectValueStep) Run(ctx context.Context, rt *Runtime) error {
	page, err := rt.page()
	if err != nil {
		return err
	}
	sel, err := rt.Selector(s.selector)
	if err != nil {
		return err
	}
	want, err := s.want.Resolve(rt)
	if err != nil {
		return err
	}
	ok, out := poll(ctx, rt.PollInterval, func(ctx context.Context) (string, bool, error) {
		v, err := page.Value(ctx, sel)
		return v, err == nil && v == want, err
	})
	if ok {
		return nil
	}
	out.actual = redact(s.want, out.actual)
	return out.failure(ctx, "element "+s.selector, &AssertionError{
		Subject:  "value of " + s.selector,
		Expected: redact(s.want, want),
	})
}

type expectURLStep struct{ want Value }

// ExpectURLContains asserts that the page URL contains a substring.
func ExpectURLContains(want Value) Step { return expectURLStep{want: want} }

func (s expectURLStep) Describe() string { return fmt.Sprintf("expect url to contain %s", s.want) }

func (s expectURLStep) Preflight(rt *Runtime) error {
	_, err := s.want.Resolve(rt)
	return err
}

func (s expectURLStep) Run(ctx context.Context, rt *Runtime) error {
	page, err := rt.page()
	if err != nil {
		return err
	}
	want, err := s.want.Resolve(rt)
	if err != nil {
		return err
	}
	ok, out := poll(ctx, rt.PollInterval, func(ctx context.Context) (string, bool, error) {
		u, err := page.URL(ctx)
		return u, err == nil && strings.Contains(u, want), err
	})
	if ok {
		return nil
	}
	return out.failure(ctx, "page url", &AssertionError{
		Subject:  "url",
		Relation: "contain",
		Expected: want,
	})
}

// -- network observation --

type interceptStep struct {
	alias    string
	method   string
	endpoint string
}

// Intercept registers alias for the next request of method to the endpoint.
// It must run before the action that triggers the request.
func Intercept(alias, method, endpoint string) Step {
	return interceptStep{alias: alias, method: strings.ToUpper(method), endpoint: endpoint}
}

func (s interceptStep) Describe() string {
	return fmt.Sprintf("intercept %s %s as @%s", s.method, s.endpoint, s.alias)
}

func (s interceptStep) producesAlias() string { return s.alias }

func (s interceptStep) Preflight(rt *Runtime) error {
	_, err := rt.Endpoint(s.endpoint)
	return err
}

func (s interceptStep) Run(ctx context.Context, rt *Runtime) error {
	page, err := rt.page()
	if err != nil {
		return err
	}
	url, err := rt.Endpoint(s.endpoint)
	if err != nil {
		return err
	}
	if err := page.Intercept(s.alias, capture.NewMatcher(s.method, url)); err != nil {
		return fmt.Errorf("failed to register @%s: %w", s.alias, err)
	}
	rt.markIntercepted(s.alias)
	return nil
}

type awaitStep struct{ alias string }

// Await blocks until the intercepted alias has resolved.
func Await(alias string) Step { return awaitStep{alias: alias} }

func (s awaitStep) Describe() string { return "wait for @" + s.alias }

func (s awaitStep) consumesAlias() string { return s.alias }

func (s awaitStep) Timeout(rt *Runtime) time.Duration { return rt.RequestTimeout }

func (s awaitStep) Run(ctx context.Context, rt *Runtime) error {
	if _, err := rt.page(); err != nil {
		return err
	}
	ex, err := rt.await(ctx, s.alias)
	if err != nil {
		return deadlineErr(ctx, "network call @"+s.alias, err)
	}
	rt.Logger.Debug("Intercepted exchange.", zap.String("alias", s.alias), zap.Int("status", ex.Response.Status))
	return nil
}
