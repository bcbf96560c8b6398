// internal/signin/suite.go
package signin

import (
	"embed"
	"net/http"

	"github.com/xkilldash9x/signin-e2e/internal/scenario"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// SuiteName is the name reported for Suite.
const SuiteName = "signin"

// Schema returns one of the embedded response schemas: "unauthorized",
// "bad_request" or "token".
func Schema(name string) []byte {
	b, err := schemaFS.ReadFile("schemas/" + name + ".json")
	if err != nil {
		panic("signin: no embedded schema " + name)
	}
	return b
}

// Values sent by the scenarios that exercise invalid input.
const (
	invalidEmailFormat = "invalid@gmail"
	unknownEmail       = "invalid_email@invalidhost.invalid.com"
	unknownPassword    = "invalidPassword"
	apiPassword        = "my_password"
	// The "without email" request has always sent this misspelling.
	apiPasswordTypo = "my_passwoed"
	grantPassword   = "password"

	msgInvalidInput  = "Invalid input arguments"
	msgGrantTypeMiss = "Required field grant_type not provided"
)

// Suite returns T_01 through T_13 in declaration order.
func Suite() scenario.Suite {
	return scenario.Suite{
		Name: SuiteName,
		Scenarios: []*scenario.Scenario{
			ui("T_01", "Shows an error when trying to sign-in with empty email",
				scenario.Type(SelPasswordInput, scenario.Password()),
				scenario.Click(SelSignInButton),
				scenario.ExpectText(SelEmailError, scenario.Message(MsgEmptyEmail)),
				scenario.ExpectCSS(SelEmailInput, "border", scenario.Style(StyleInputErrorBorder)),
				scenario.ExpectNoText(SelPasswordError),
				scenario.ExpectNoCSS(SelPasswordInput, "border", scenario.Style(StyleInputErrorBorder)),
			),
			withGaps(ui("T_02", "Shows an error when trying to sign-in with invalid email",
				scenario.Type(SelEmailInput, scenario.Literal(invalidEmailFormat)),
				scenario.Click(SelSignInButton),
				scenario.ExpectText(SelEmailError, scenario.Message(MsgInvalidEmail)),
				scenario.ExpectCSS(SelEmailInput, "border", scenario.Style(StyleInputErrorBorder)),
			), "the password field error is not checked; which validation wins is unspecified"),
			ui("T_03", "Shows an error when trying to sign-in with empty password",
				scenario.Type(SelEmailInput, scenario.Email()),
				scenario.Click(SelSignInButton),
				scenario.ExpectText(SelPasswordError, scenario.Message(MsgEmptyPassword)),
				scenario.ExpectCSS(SelPasswordInput, "border", scenario.Style(StyleInputErrorBorder)),
				scenario.ExpectNoText(SelEmailError),
				scenario.ExpectNoCSS(SelEmailInput, "border", scenario.Style(StyleInputErrorBorder)),
			),
			ui("T_04", "Can show and hide password when I click on the eye icon",
				scenario.Type(SelEmailInput, scenario.Email()),
				scenario.Type(SelPasswordInput, scenario.Password()),
				scenario.Click(SelEyeIcon),
				scenario.ExpectAttr(SelPasswordInput, "type", scenario.Literal("text")),
				scenario.ExpectCSS(SelEyeIcon, "color", scenario.Style(StyleEyeEnabled)),
				scenario.Click(SelEyeIcon),
				scenario.ExpectAttr(SelPasswordInput, "type", scenario.Literal("password")),
				scenario.ExpectCSS(SelEyeIcon, "color", scenario.Style(StyleEyeDisabled)),
			),
			ui("T_05", "Shows an error when trying to sign-in with invalid password",
				scenario.Type(SelEmailInput, scenario.Literal(unknownEmail)),
				scenario.Type(SelPasswordInput, scenario.Literal(unknownPassword)),
				scenario.Intercept("signinRequest", "", EndpointOAuthToken),
				scenario.ExpectNoText(SelEmailError),
				scenario.ExpectNoText(SelPasswordError),
				scenario.Click(SelSignInButton),
				scenario.WaitFor(SelSpinner),
				scenario.ExpectGone(SelSpinner),
				scenario.ExpectText(SelFormError, scenario.Message(MsgInvalidSignIn)),
				scenario.Await("signinRequest"),
				scenario.ExpectMethod("signinRequest", http.MethodPost),
				scenario.ExpectStatus("signinRequest", http.StatusUnauthorized),
				scenario.ExpectBodyField("signinRequest", "status", scenario.Literal("Unauthorized")),
				scenario.ExpectBodyField("signinRequest", "type", scenario.Literal("invalid_credentials")),
				scenario.ExpectBodySchema("signinRequest", "unauthorized", Schema("unauthorized")),
				scenario.ExpectNoText(SelEmailError),
				scenario.ExpectNoText(SelPasswordError),
			),
			ui("T_06", "Successfully sign-in with a registered user",
				scenario.ExpectAttr(SelEmailInput, "placeholder", scenario.Literal("Enter your email")),
				scenario.Type(SelEmailInput, scenario.Email()),
				scenario.ExpectValue(SelEmailInput, scenario.Email()),
				scenario.Intercept("tokenRequest", "", EndpointOAuthToken),
				scenario.Type(SelPasswordInput, scenario.Password()),
				scenario.Click(SelSignInButton),
				scenario.Await("tokenRequest"),
				scenario.ExpectRequestField("tokenRequest", "email", scenario.Email()),
				scenario.ExpectRequestField("tokenRequest", "password", scenario.Password()),
				scenario.ExpectRequestField("tokenRequest", "grant_type", scenario.Literal(grantPassword)),
				scenario.ExpectStatus("tokenRequest", http.StatusOK),
				scenario.ExpectHeader("tokenRequest", "Content-Type", scenario.Literal("application/json; charset=utf-8")),
				scenario.ExpectBodyKeys("tokenRequest", "access_token", "expires_in", "refresh_token", "token_type"),
				scenario.ExpectBodySchema("tokenRequest", "token", Schema("token")),
				scenario.ExpectURLContains(scenario.Literal("/workspace/")),
			),
			ui("T_07", "Redirects to forgot password page",
				scenario.ExpectText(SelForgotPassword, scenario.Literal("Forgot Password?")),
				scenario.Click(SelForgotPassword),
				scenario.ExpectURLContains(scenario.Endpoint(EndpointForgotPassword)),
			),

			api("T_08", "Fails request to token API with empty email", scenario.Body{
				"email":      scenario.Literal(""),
				"password":   scenario.Literal(apiPassword),
				"grant_type": scenario.Literal(grantPassword),
			}, msgInvalidInput),
			api("T_09", "Fails request to token API with invalid email", scenario.Body{
				"email":      scenario.Literal("invalidemail"),
				"password":   scenario.Literal(apiPassword),
				"grant_type": scenario.Literal(grantPassword),
			}, msgInvalidInput),
			withGaps(api("T_10", "Fails request to token API without email", scenario.Body{
				"password":   scenario.Literal(apiPasswordTypo),
				"grant_type": scenario.Literal(grantPassword),
			}, ""), "message is not checked; the backend reports the grant_type message instead of the missing email"),
			withGaps(api("T_11", "Fails request to token API without password", scenario.Body{
				"email":      scenario.Email(),
				"grant_type": scenario.Literal(grantPassword),
			}, ""), "message is not checked; the backend reports the grant_type message instead of the missing password"),
			api("T_12", "Fails request to token API with invalid grant_type", scenario.Body{
				"email":      scenario.Email(),
				"password":   scenario.Password(),
				"grant_type": scenario.Literal("invalid"),
			}, msgGrantTypeMiss),
			api("T_13", "Fails request to token API without grant_type", scenario.Body{
				"email":    scenario.Email(),
				"password": scenario.Password(),
			}, msgGrantTypeMiss),
		},
	}
}

// withGaps records the checks sc knowingly leaves out.
func withGaps(sc *scenario.Scenario, gaps ...string) *scenario.Scenario {
	sc.Gaps = append(sc.Gaps, gaps...)
	return sc
}

// ui starts every scenario on a freshly loaded sign-in page.
func ui(tag, desc string, steps ...scenario.Step) *scenario.Scenario {
	return &scenario.Scenario{
		Tag:         tag,
		Description: desc,
		Kind:        scenario.KindUI,
		Steps:       append([]scenario.Step{scenario.Visit(EndpointSignin)}, steps...),
	}
}

// api posts body to the token endpoint and expects a 400. An empty message
// leaves the message unchecked.
func api(tag, desc string, body scenario.Body, message string) *scenario.Scenario {
	const alias = "tokenRequest"
	steps := []scenario.Step{
		scenario.Request(alias, http.MethodPost, EndpointOAuthToken, body),
		scenario.ExpectStatus(alias, http.StatusBadRequest),
		scenario.ExpectBodyField(alias, "status", scenario.Literal("Bad Request")),
	}
	if message != "" {
		steps = append(steps,
			scenario.ExpectBodyField(alias, "message", scenario.Literal(message)),
			scenario.ExpectBodySchema(alias, "bad_request", Schema("bad_request")),
		)
	}
	return &scenario.Scenario{
		Tag:         tag,
		Description: desc,
		Kind:        scenario.KindAPI,
		Steps:       steps,
	}
}
