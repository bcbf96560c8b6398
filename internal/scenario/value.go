// internal/scenario/value.go
package scenario

import (
	"fmt"
	"strconv"
)

// Environment variable names for the sign-in credentials.
const (
	EnvEmail    = "USER_EMAIL"
	EnvPassword = "USER_PASSWORD"
)

type valueKind int

const (
	valueLiteral valueKind = iota
	valueEmail
	valuePassword
	valueMessage
	valueStyle
	valueEndpoint
)

// Value is resolved against the Runtime when its step runs, so scenarios can
// be declared before fixtures, endpoints or credentials are loaded.
type Value struct {
	kind valueKind
	key  string
}

// Literal is a fixed string.
func Literal(s string) Value { return Value{kind: valueLiteral, key: s} }

// Email is the USER_EMAIL credential.
func Email() Value { return Value{kind: valueEmail} }

// Password is the USER_PASSWORD credential.
func Password() Value { return Value{kind: valuePassword} }

// Message is an expected message from the fixtures.
func Message(key string) Value { return Value{kind: valueMessage, key: key} }

// Style is an expected computed style from the fixtures.
func Style(key string) Value { return Value{kind: valueStyle, key: key} }

// Endpoint is the resolved URL of a logical endpoint.
func Endpoint(name string) Value { return Value{kind: valueEndpoint, key: name} }

// Secret reports whether the resolved value must not appear in output.
func (v Value) Secret() bool { return v.kind == valuePassword }

// Resolve returns the concrete string. A missing key, endpoint or credential
// is a *ConfigurationError.
func (v Value) Resolve(rt *Runtime) (string, error) {
	switch v.kind {
	case valueLiteral:
		return v.key, nil
	case valueEmail:
		if rt.Credentials.Email == "" {
			return "", configErr("missing required environment value "+EnvEmail, nil)
		}
		return rt.Credentials.Email, nil
	case valuePassword:
		if rt.Credentials.Password == "" {
			return "", configErr("missing required environment value "+EnvPassword, nil)
		}
		return rt.Credentials.Password, nil
	case valueMessage:
		if rt.Fixtures == nil {
			return "", configErr("no fixtures loaded", nil)
		}
		s, err := rt.Fixtures.Message(v.key)
		if err != nil {
			return "", configErr("", err)
		}
		return s, nil
	case valueStyle:
		if rt.Fixtures == nil {
			return "", configErr("no fixtures loaded", nil)
		}
		s, err := rt.Fixtures.Style(v.key)
		if err != nil {
			return "", configErr("", err)
		}
		return s, nil
	case valueEndpoint:
		return rt.Endpoint(v.key)
	}
	return "", configErr(fmt.Sprintf("unknown value kind %d", v.kind), nil)
}

// String names the value without revealing credentials.
func (v Value) String() string {
	switch v.kind {
	case valueEmail:
		return "$" + EnvEmail
	case valuePassword:
		return "$" + EnvPassword
	case valueMessage:
		return "messages." + v.key
	case valueStyle:
		return "styles." + v.key
	case valueEndpoint:
		return "endpoint " + v.key
	default:
		return strconv.Quote(v.key)
	}
}

// redact hides a secret value in diagnostics, keeping its length.
func redact(v Value, s string) string {
	if !v.Secret() {
		return s
	}
	return fmt.Sprintf("<redacted len=%d>", len(s))
}
