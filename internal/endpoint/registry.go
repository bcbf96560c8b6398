// File: internal/endpoint/registry.go
package endpoint

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var (
	// ErrUnknownEndpoint is returned when a logical endpoint name is not registered.
	ErrUnknownEndpoint = errors.New("unknown endpoint")
	// ErrNoEnvironment is returned when the active environment is unset or undefined.
	ErrNoEnvironment = errors.New("no active environment")
	// ErrBadBaseURL is returned when an environment's base URL is not an absolute http(s) URL.
	ErrBadBaseURL = errors.New("invalid base URL")
)

// Host selects which base URL of an environment an endpoint is resolved against.
type Host int

const (
	// HostApp is the web application serving the pages under test.
	HostApp Host = iota
	// HostAPI is the backend API. It falls back to the app host when unset.
	HostAPI
)

func (h Host) String() string {
	switch h {
	case HostApp:
		return "app"
	case HostAPI:
		return "api"
	default:
		return fmt.Sprintf("Host(%d)", int(h))
	}
}

// Endpoint is a logical endpoint. Path is joined to the host's base URL unless
// it is already an absolute URL.
type Endpoint struct {
	Name string
	Host Host
	Path string
}

// Environment is one deployment of the application under test.
type Environment struct {
	Name    string
	BaseURL string
	APIURL  string
}

// Base returns the base URL for h.
func (e Environment) Base(h Host) string {
	if h == HostAPI && e.APIURL != "" {
		return e.APIURL
	}
	return e.BaseURL
}

// Registry resolves logical endpoint names against the active environment.
// It is immutable once built.
type Registry struct {
	active    string
	envs      map[string]Environment
	endpoints map[string]Endpoint
	names     []string
}

// NewRegistry builds a Registry. Duplicate or empty endpoint names are rejected.
// An empty or undefined active environment is not an error here; Resolve reports it.
func NewRegistry(active string, envs map[string]Environment, eps ...Endpoint) (*Registry, error) {
	r := &Registry{
		active:    active,
		envs:      make(map[string]Environment, len(envs)),
		endpoints: make(map[string]Endpoint, len(eps)),
	}
	for name, env := range envs {
		if env.Name == "" {
			env.Name = name
		}
		r.envs[name] = env
	}
	for _, ep := range eps {
		if ep.Name == "" {
			return nil, errors.New("endpoint with empty name")
		}
		if _, dup := r.endpoints[ep.Name]; dup {
			return nil, fmt.Errorf("endpoint %q registered twice", ep.Name)
		}
		r.endpoints[ep.Name] = ep
		r.names = append(r.names, ep.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Names returns the registered endpoint names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Environment returns the active environment.
func (r *Registry) Environment() (Environment, error) {
	if r.active == "" {
		return Environment{}, fmt.Errorf("%w: environment name is empty", ErrNoEnvironment)
	}
	env, ok := r.envs[r.active]
	if !ok {
		return Environment{}, fmt.Errorf("%w: %q is not defined", ErrNoEnvironment, r.active)
	}
	return env, nil
}

// Lookup returns the endpoint definition for name.
func (r *Registry) Lookup(name string) (Endpoint, error) {
	ep, ok := r.endpoints[name]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrUnknownEndpoint, name)
	}
	return ep, nil
}

// Resolve returns the fully qualified URL of the named endpoint.
func (r *Registry) Resolve(name string) (string, error) {
	ep, err := r.Lookup(name)
	if err != nil {
		return "", err
	}
	if abs, err := url.Parse(ep.Path); err == nil && abs.IsAbs() {
		return abs.String(), nil
	}
	env, err := r.Environment()
	if err != nil {
		return "", err
	}
	base := env.Base(ep.Host)
	return Join(base, ep.Path)
}

// Join appends path to base, normalising the slash between them and keeping
// any query string on path.
func Join(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrBadBaseURL, base, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w %q: must be an absolute http(s) URL", ErrBadBaseURL, base)
	}

	p := path
	query := ""
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p, query = p[:i], p[i+1:]
	}
	joined := strings.TrimRight(u.Path, "/")
	if p != "" {
		joined += "/" + strings.TrimLeft(p, "/")
	}
	if joined == "" {
		joined = "/"
	}
	u.Path = joined
	u.RawPath = ""
	if query != "" {
		u.RawQuery = query
	}
	u.Fragment = ""
	return u.String(), nil
}
