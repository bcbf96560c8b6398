// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Engine names accepted by browser.engine.
const (
	EngineChromedp   = "chromedp"
	EnginePlaywright = "playwright"
)

// Config holds the entire application configuration.
type Config struct {
	Logger       LoggerConfig                 `mapstructure:"logger" yaml:"logger"`
	Environment  string                       `mapstructure:"environment" yaml:"environment"`
	Environments map[string]EnvironmentConfig `mapstructure:"environments" yaml:"environments"`
	Credentials  CredentialsConfig            `mapstructure:"credentials" yaml:"credentials"`
	Browser      BrowserConfig                `mapstructure:"browser" yaml:"browser"`
	Network      NetworkConfig                `mapstructure:"network" yaml:"network"`
	Runner       RunnerConfig                 `mapstructure:"runner" yaml:"runner"`
	Report       ReportConfig                 `mapstructure:"report" yaml:"report"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// EnvironmentConfig names the hosts of one deployment of the application under test.
// APIURL falls back to BaseURL when empty.
type EnvironmentConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	APIURL  string `mapstructure:"api_url" yaml:"api_url"`
}

// CredentialsConfig is the registered user used by positive-path scenarios.
// Both values normally come from USER_EMAIL / USER_PASSWORD.
type CredentialsConfig struct {
	Email    string `mapstructure:"email" yaml:"email"`
	Password string `mapstructure:"password" yaml:"-"`
}

// IsSet reports whether both halves of the credential pair are present.
func (c CredentialsConfig) IsSet() bool {
	return c.Email != "" && c.Password != ""
}

// BrowserConfig holds settings for the automation engine.
type BrowserConfig struct {
	Engine        string         `mapstructure:"engine" yaml:"engine"`
	Headless      bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath      string         `mapstructure:"exec_path" yaml:"exec_path"`
	IgnoreTLS     bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	InstallDriver bool           `mapstructure:"install_driver" yaml:"install_driver"`
	Args          []string       `mapstructure:"args" yaml:"args"`
	Viewport      map[string]int `mapstructure:"viewport" yaml:"viewport"`
	SlowMo        time.Duration  `mapstructure:"slow_mo" yaml:"slow_mo"`
}

// ViewportSize returns the configured viewport, defaulting to 1280x720.
func (b BrowserConfig) ViewportSize() (int, int) {
	w, h := b.Viewport["width"], b.Viewport["height"]
	if w <= 0 {
		w = 1280
	}
	if h <= 0 {
		h = 720
	}
	return w, h
}

// NetworkConfig tunes the network behavior of the browser and the API client.
type NetworkConfig struct {
	Timeout               time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	NavigationTimeout     time.Duration     `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait          time.Duration     `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	CaptureResponseBodies bool              `mapstructure:"capture_response_bodies" yaml:"capture_response_bodies"`
	IgnoreTLSErrors       bool              `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Headers               map[string]string `mapstructure:"headers" yaml:"headers"`
	RateLimit             float64           `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst             int               `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// RunnerConfig controls scenario execution.
type RunnerConfig struct {
	StepTimeout    time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	Parallel       int           `mapstructure:"parallel" yaml:"parallel"`
	FixturesFile   string        `mapstructure:"fixtures_file" yaml:"fixtures_file"`
}

// ReportConfig selects the result reporter.
type ReportConfig struct {
	Format  string `mapstructure:"format" yaml:"format"`
	Output  string `mapstructure:"output" yaml:"output"`
	NoColor bool   `mapstructure:"no_color" yaml:"no_color"`
}

// ActiveEnvironment returns the configured hosts for the selected environment.
func (c *Config) ActiveEnvironment() (EnvironmentConfig, error) {
	if c.Environment == "" {
		return EnvironmentConfig{}, errors.New("environment is not set (SIGNIN_E2E_ENVIRONMENT)")
	}
	env, ok := c.Environments[c.Environment]
	if !ok {
		return EnvironmentConfig{}, fmt.Errorf("environment %q is not defined under environments", c.Environment)
	}
	return env, nil
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "signin-e2e")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Environment --
	v.SetDefault("environment", "local")
	v.SetDefault("environments.local.base_url", "http://localhost:3000")

	// -- Browser --
	v.SetDefault("browser.engine", EngineChromedp)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.install_driver", false)
	v.SetDefault("browser.viewport.width", 1280)
	v.SetDefault("browser.viewport.height", 720)

	// -- Network --
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.navigation_timeout", "60s")
	v.SetDefault("network.post_load_wait", "500ms")
	v.SetDefault("network.capture_response_bodies", true)
	v.SetDefault("network.ignore_tls_errors", false)
	v.SetDefault("network.rate_limit", 0)
	v.SetDefault("network.rate_burst", 1)

	// -- Runner --
	v.SetDefault("runner.step_timeout", "4s")
	v.SetDefault("runner.request_timeout", "30s")
	v.SetDefault("runner.parallel", 1)

	// -- Report --
	v.SetDefault("report.format", "text")
	v.SetDefault("report.output", "stdout")
	v.SetDefault("report.no_color", false)
}

// BindSecrets binds the credential keys to the plain environment variables the
// suite has always used, in addition to the prefixed ones AutomaticEnv picks up.
func BindSecrets(v *viper.Viper) error {
	if err := v.BindEnv("credentials.email", "SIGNIN_E2E_CREDENTIALS_EMAIL", "USER_EMAIL"); err != nil {
		return err
	}
	return v.BindEnv("credentials.password", "SIGNIN_E2E_CREDENTIALS_PASSWORD", "USER_PASSWORD")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	if err := BindSecrets(v); err != nil {
		return nil, fmt.Errorf("failed to bind credential environment variables: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
// Missing credentials are not an error here; only scenarios that need them fail.
func (c *Config) Validate() error {
	switch c.Browser.Engine {
	case EngineChromedp, EnginePlaywright:
	default:
		return fmt.Errorf("browser.engine must be %q or %q, got %q", EngineChromedp, EnginePlaywright, c.Browser.Engine)
	}
	for name, env := range c.Environments {
		if err := validateBaseURL(env.BaseURL); err != nil {
			return fmt.Errorf("environments.%s.base_url: %w", name, err)
		}
		if env.APIURL != "" {
			if err := validateBaseURL(env.APIURL); err != nil {
				return fmt.Errorf("environments.%s.api_url: %w", name, err)
			}
		}
	}
	if c.Runner.StepTimeout <= 0 {
		return fmt.Errorf("runner.step_timeout must be a positive duration")
	}
	if c.Runner.RequestTimeout <= 0 {
		return fmt.Errorf("runner.request_timeout must be a positive duration")
	}
	if c.Runner.Parallel < 1 {
		return fmt.Errorf("runner.parallel must be at least 1")
	}
	if c.Network.RateLimit < 0 {
		return fmt.Errorf("network.rate_limit must not be negative")
	}
	switch strings.ToLower(c.Report.Format) {
	case "text", "json", "junit", "sarif":
	default:
		return fmt.Errorf("report.format %q is not supported (text, json, junit, sarif)", c.Report.Format)
	}
	return nil
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return errors.New("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	return nil
}

// ExpandPath resolves a leading ~ against the user's home directory.
func ExpandPath(p string) (string, error) {
	if p == "" {
		return p, nil
	}
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("failed to expand path %q: %w", p, err)
	}
	return expanded, nil
}

// DefaultSearchPaths lists the directories searched for signin-e2e.yaml when no
// --config flag is given: the working directory and ~/.signin-e2e.
func DefaultSearchPaths() []string {
	paths := []string{"."}
	if home, err := homedir.Dir(); err == nil {
		paths = append(paths, filepath.Join(home, ".signin-e2e"))
	} else if h := os.Getenv("HOME"); h != "" {
		paths = append(paths, filepath.Join(h, ".signin-e2e"))
	}
	return paths
}
