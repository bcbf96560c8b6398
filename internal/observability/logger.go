// File: internal/observability/logger.go
package observability

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xkilldash9x/signin-e2e/internal/config"
)

var (
	// globalLogger stores the global logger instance safely across goroutines.
	globalLogger atomic.Pointer[zap.Logger]
	// once ensures that initialization happens exactly once.
	once sync.Once
)

// namedColors maps the color names accepted in the logger config onto ANSI
// color indexes. Any other value is handed to lipgloss as is, so "#ff8800"
// and "208" work too.
var namedColors = map[string]string{
	"black":   "0",
	"red":     "1",
	"green":   "2",
	"yellow":  "3",
	"blue":    "4",
	"magenta": "5",
	"cyan":    "6",
	"white":   "7",
}

// Option adjusts Initialize.
type Option func(*settings)

type settings struct {
	profile termenv.Profile
}

// WithColorProfile sets the color profile of the console encoder. Without it
// console output carries no escape sequences.
func WithColorProfile(p termenv.Profile) Option {
	return func(s *settings) { s.profile = p }
}

// TerminalProfile returns the color profile f supports, honoring NO_COLOR and
// CLICOLOR_FORCE.
func TerminalProfile(f *os.File) termenv.Profile {
	return termenv.NewOutput(f).EnvColorProfile()
}

// Initialize sets up the global zap logger. Console output goes to consoleWriter;
// when cfg.LogFile is set a rotating JSON file core is teed alongside it.
// Only the first call has any effect.
func Initialize(cfg config.LoggerConfig, consoleWriter zapcore.WriteSyncer, opts ...Option) {
	once.Do(func() {
		s := settings{profile: termenv.Ascii}
		for _, opt := range opts {
			opt(&s)
		}
		logger := build(cfg, consoleWriter, s)
		globalLogger.Store(logger)

		zap.ReplaceGlobals(logger)
		zap.RedirectStdLog(logger)
	})
}

// ResetForTest clears the global logger so a test can initialize it again.
func ResetForTest() {
	globalLogger.Store(nil)
	once = sync.Once{}
}

func build(cfg config.LoggerConfig, consoleWriter zapcore.WriteSyncer, s settings) *zap.Logger {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	cores := []zapcore.Core{zapcore.NewCore(consoleEncoder(cfg, s.profile), consoleWriter, level)}

	if cfg.LogFile != "" {
		path := cfg.LogFile
		if expanded, err := config.ExpandPath(path); err == nil {
			path = expanded
		}
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
		cores = append(cores, zapcore.NewCore(jsonEncoder(), fileWriter, level))
	}

	options := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
	if cfg.AddSource {
		options = append(options, zap.AddCaller())
	}

	logger := zap.New(zapcore.NewTee(cores...), options...)
	if cfg.ServiceName != "" {
		logger = logger.Named(cfg.ServiceName)
	}
	return logger
}

// levelStyles renders each level name in its configured color. Levels without
// a color stay plain.
func levelStyles(colors config.ColorConfig, profile termenv.Profile) map[zapcore.Level]lipgloss.Style {
	r := lipgloss.NewRenderer(os.Stderr)
	r.SetColorProfile(profile)

	names := map[zapcore.Level]string{
		zapcore.DebugLevel:  colors.Debug,
		zapcore.InfoLevel:   colors.Info,
		zapcore.WarnLevel:   colors.Warn,
		zapcore.ErrorLevel:  colors.Error,
		zapcore.DPanicLevel: colors.DPanic,
		zapcore.PanicLevel:  colors.Panic,
		zapcore.FatalLevel:  colors.Fatal,
	}
	styles := make(map[zapcore.Level]lipgloss.Style, len(names))
	for lvl, name := range names {
		style := r.NewStyle()
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			if idx, ok := namedColors[name]; ok {
				name = idx
			}
			style = style.Foreground(lipgloss.Color(name))
		}
		styles[lvl] = style
	}
	return styles
}

// consoleEncoder returns a single-line console encoder for "console" and a
// JSON encoder for anything else.
func consoleEncoder(cfg config.LoggerConfig, profile termenv.Profile) zapcore.Encoder {
	if cfg.Format != "console" {
		return jsonEncoder()
	}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")

	styles := levelStyles(cfg.Colors, profile)
	encoderConfig.EncodeLevel = func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		name := strings.ToUpper(level.String())
		if style, ok := styles[level]; ok {
			name = style.Render(name)
		}
		enc.AppendString(name)
	}
	encoderConfig.EncodeName = func(loggerName string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(loggerName + ".")
	}
	return zapcore.NewConsoleEncoder(encoderConfig)
}

// File output is always JSON.
func jsonEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

// GetLogger returns the initialized global logger instance, or a development
// logger named "fallback" if Initialize has not run.
func GetLogger() *zap.Logger {
	logger := globalLogger.Load()
	if logger == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			return zap.NewNop()
		}
		l.Warn("Global logger requested before initialization; using fallback.")
		return l.Named("fallback")
	}
	return logger
}

// Sync flushes any buffered log entries. Applications should call this before exiting.
func Sync() {
	logger := globalLogger.Load()
	if logger == nil {
		return
	}
	if err := logger.Sync(); err != nil {
		// stderr and pipes commonly refuse fsync.
		msg := err.Error()
		for _, benign := range []string{"sync /dev/std", "invalid argument", "operation not supported", "inappropriate ioctl"} {
			if strings.Contains(msg, benign) {
				return
			}
		}
		fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
	}
}

// Secret returns a field that records only the length of a sensitive value.
func Secret(key, value string) zap.Field {
	return zap.Int(key+"_len", len(value))
}
