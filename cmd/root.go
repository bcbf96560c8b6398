// cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/signin-e2e/internal/config"
	"github.com/xkilldash9x/signin-e2e/internal/observability"
)

// EnvPrefix prefixes every environment variable read into the configuration.
const EnvPrefix = "SIGNIN_E2E"

type contextKey string

const configKey contextKey = "config"

// flagKeys maps command flags onto the configuration keys they override.
var flagKeys = map[string]string{
	"env":          "environment",
	"engine":       "browser.engine",
	"headless":     "browser.headless",
	"format":       "report.format",
	"output":       "report.output",
	"no-color":     "report.no_color",
	"parallel":     "runner.parallel",
	"step-timeout": "runner.step_timeout",
	"fixtures":     "runner.fixtures_file",
	"log-level":    "logger.level",
}

// NewRootCommand builds a fresh command tree.
func NewRootCommand() *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:           "signin-e2e",
		Short:         "End-to-end checks for the sign-in page and the token API.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)
			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.Initialize(config.LoggerConfig{Level: "info", Format: "console"}, zapcore.Lock(os.Stderr))
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			// Logs go to stderr so reports on stdout stay parseable.
			profile := observability.TerminalProfile(os.Stderr)
			if cfg.Report.NoColor {
				profile = termenv.Ascii
			}
			observability.Initialize(cfg.Logger, zapcore.Lock(os.Stderr), observability.WithColorProfile(profile))
			observability.GetLogger().Debug("Configuration loaded.",
				zap.String("version", Version),
				zap.String("config_file", v.ConfigFileUsed()),
				zap.String("environment", cfg.Environment),
			)
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}
	root.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./signin-e2e.yaml, then ~/.signin-e2e/config.yaml)")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newEndpointsCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the command line against a fresh command tree.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCommand()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, ErrScenariosFailed) {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	}
	observability.Sync()
	return err
}

// initializeConfig reads the config file, the environment and the flags of cmd
// into v, in increasing order of precedence.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	path, err := configPath(cfgFile)
	if err != nil {
		return err
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(key, f)
	})
	if bindErr != nil {
		return bindErr
	}

	// Host overrides apply to whichever environment ends up active.
	env := v.GetString("environment")
	for flag, field := range map[string]string{"base-url": "base_url", "api-url": "api_url"} {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if env == "" {
			return fmt.Errorf("--%s needs an active environment (--env)", flag)
		}
		v.Set(fmt.Sprintf("environments.%s.%s", env, field), f.Value.String())
	}
	return nil
}

// configPath returns the explicit config file, or the first default location
// that exists. An empty result means no file is read.
func configPath(cfgFile string) (string, error) {
	if cfgFile != "" {
		return config.ExpandPath(cfgFile)
	}
	for _, dir := range config.DefaultSearchPaths() {
		name := "signin-e2e.yaml"
		if dir != "." {
			name = "config.yaml"
		}
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

func configFrom(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration was not loaded")
	}
	return cfg, nil
}
