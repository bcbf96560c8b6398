// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/signin-e2e/internal/browser"
	"github.com/xkilldash9x/signin-e2e/internal/capture"
)

// -- Browser Mocks --

// MockPage mocks browser.Page.
type MockPage struct {
	mock.Mock
}

func NewMockPage() *MockPage { return &MockPage{} }

func (m *MockPage) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}
func (m *MockPage) Type(ctx context.Context, selector, text string) error {
	return m.Called(ctx, selector, text).Error(0)
}
func (m *MockPage) Click(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}
func (m *MockPage) WaitPresent(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}
func (m *MockPage) WaitGone(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}
func (m *MockPage) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	args := m.Called(ctx, selector, name)
	return args.String(0), args.Bool(1), args.Error(2)
}
func (m *MockPage) Value(ctx context.Context, selector string) (string, error) {
	args := m.Called(ctx, selector)
	return args.String(0), args.Error(1)
}
func (m *MockPage) ComputedStyle(ctx context.Context, selector, property string) (string, error) {
	args := m.Called(ctx, selector, property)
	return args.String(0), args.Error(1)
}
func (m *MockPage) TextVisible(ctx context.Context, selector, text string) (browser.TextMatch, error) {
	args := m.Called(ctx, selector, text)
	return args.Get(0).(browser.TextMatch), args.Error(1)
}
func (m *MockPage) VisibleText(ctx context.Context, selector string) (string, error) {
	args := m.Called(ctx, selector)
	return args.String(0), args.Error(1)
}
func (m *MockPage) URL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
func (m *MockPage) Intercept(alias string, matcher capture.Matcher) error {
	return m.Called(alias, matcher).Error(0)
}

// Await honors ctx before consulting the expectations, like the real drivers.
func (m *MockPage) Await(ctx context.Context, alias string) (*capture.Exchange, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	args := m.Called(ctx, alias)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*capture.Exchange), args.Error(1)
}
func (m *MockPage) Close(ctx context.Context) error { return m.Called(ctx).Error(0) }

// MockDriver mocks browser.Driver.
type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) NewPage(ctx context.Context) (browser.Page, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(browser.Page), args.Error(1)
}
func (m *MockDriver) Close(ctx context.Context) error { return m.Called(ctx).Error(0) }

// -- API Client Mock --

// MockRequester mocks the direct API client used by request steps.
type MockRequester struct {
	mock.Mock
}

func (m *MockRequester) Do(ctx context.Context, alias, method, url string, body any) (*capture.Exchange, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	args := m.Called(ctx, alias, method, url, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*capture.Exchange), args.Error(1)
}
