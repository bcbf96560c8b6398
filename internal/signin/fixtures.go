// Package signin declares the sign-in page fixtures, its endpoints and the
// scenario suite that exercises them.
package signin

import (
	"github.com/xkilldash9x/signin-e2e/internal/endpoint"
	"github.com/xkilldash9x/signin-e2e/internal/fixture"
)

// Logical endpoint names.
const (
	EndpointSignin         = "signin"
	EndpointOAuthToken     = "oauth_token"
	EndpointForgotPassword = "forgot_password"
)

// Selector keys.
const (
	SelEmailInput     = "userEmail.input"
	SelEmailError     = "userEmail.errorMessageSpan"
	SelPasswordInput  = "userPassword.input"
	SelPasswordError  = "userPassword.errorMessageSpan"
	SelSignInButton   = "signInButton"
	SelSpinner        = "spinnerButton"
	SelForgotPassword = "forgotPasswordLink"
	SelEyeIcon        = "eyeIcon"
	SelFormError      = "errorMessageSpan"
)

// Message keys.
const (
	MsgInvalidEmail  = "invalidEmailMessage"
	MsgEmptyEmail    = "emptyEmailMessage"
	MsgEmptyPassword = "emptyPasswordMessage"
	MsgInvalidSignIn = "invalidSignInMessage"
)

// Style keys.
const (
	StyleInputErrorBorder = "inputErrorBorder"
	StyleEyeEnabled       = "eyeIconEnabledColor"
	StyleEyeDisabled      = "eyeIconDisabledColor"
)

var defaultFixtures = &fixture.Page{
	Name: "signin",
	Selectors: fixture.MustSet(fixture.KindSelectors, map[string]string{
		SelEmailInput:     `[id="text-input"]`,
		SelEmailError:     "form div:nth-of-type(1) span",
		SelPasswordInput:  `[id="password-input"]`,
		SelPasswordError:  "form div:nth-of-type(2) span",
		SelSignInButton:   "button[type=submit]",
		SelSpinner:        "div[data-testid=button-spinner]",
		SelForgotPassword: "label[for=password-input] div a",
		SelEyeIcon:        `[data-testid="eye-icon"]`,
		SelFormError:      "form span",
	}),
	Messages: fixture.MustSet(fixture.KindMessages, map[string]string{
		MsgInvalidEmail:  "This is not a valid email",
		MsgEmptyEmail:    "Email can’t be blank",
		MsgEmptyPassword: "Password can’t be blank",
		MsgInvalidSignIn: "We couldn’t sign you in. Please check your details and try again.",
	}),
	Styles: fixture.MustSet(fixture.KindStyles, map[string]string{
		StyleInputErrorBorder: "2px solid rgb(204, 0, 0)",
		StyleEyeEnabled:       "rgb(242, 103, 38)",
		StyleEyeDisabled:      "rgba(0, 0, 0, 0.4)",
	}),
}

// DefaultFixtures returns the built-in sign-in page fixtures. The returned
// page is shared and immutable; use Merge to override values.
func DefaultFixtures() *fixture.Page { return defaultFixtures }

// Endpoints returns the default endpoint definitions of the sign-in flow.
func Endpoints() []endpoint.Endpoint {
	return []endpoint.Endpoint{
		{Name: EndpointSignin, Host: endpoint.HostApp, Path: "/signin"},
		{Name: EndpointOAuthToken, Host: endpoint.HostAPI, Path: "/oauth/token"},
		{Name: EndpointForgotPassword, Host: endpoint.HostApp, Path: "/forgot-password"},
	}
}
