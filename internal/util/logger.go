package util

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	once         sync.Once
)

// LogOptions select the logger flavour. Production gets sampled JSON-style
// output without stack traces; everything else gets the colored console.
type LogOptions struct {
	Environment string
	Level       string
	Format      string
	// OutputPaths defaults to stderr so stdout stays free for tooling.
	OutputPaths []string
}

// NewLogger builds a logger without touching the global one.
func NewLogger(opts LogOptions) (*zap.Logger, error) {
	var cfg zap.Config
	if opts.Environment == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.DisableStacktrace = true
		cfg.Sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	switch strings.ToLower(opts.Format) {
	case "json":
		cfg.Encoding = "json"
		cfg.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	case "", "console":
		cfg.Encoding = "console"
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	cfg.OutputPaths = opts.OutputPaths
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stderr"}
	}
	cfg.ErrorOutputPaths = []string{"stderr"}

	return cfg.Build(zap.AddCaller(), zap.AddCallerSkip(1))
}

// Init installs the process-wide logger. Only the first call has any effect;
// a bad level or format falls back to info on the console.
func Init(environment, level, format string) *zap.Logger {
	once.Do(func() {
		logger, err := NewLogger(LogOptions{Environment: environment, Level: level, Format: format})
		if err != nil {
			var fallbackErr error
			logger, fallbackErr = NewLogger(LogOptions{Environment: environment})
			if fallbackErr != nil {
				panic("failed to initialize logger: " + fallbackErr.Error())
			}
			logger.Warn("invalid logging settings, using defaults", zap.Error(err))
		}
		globalLogger = logger
		zap.ReplaceGlobals(globalLogger)
	})
	return globalLogger
}

func Get() *zap.Logger {
	if globalLogger == nil {
		return Init("production", "info", "json")
	}
	return globalLogger
}

// Named returns a child logger for a component. The caller skip added for the
// package helpers is undone so call sites are reported correctly.
func Named(component string) *zap.Logger {
	return Get().WithOptions(zap.AddCallerSkip(-1)).Named(component)
}

func Sync() {
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
}

// ParseLevel accepts the usual level names; empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
}

func Info(msg string, fields ...zap.Field) { Get().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field) { Get().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Get().Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { Get().Fatal(msg, fields...) }

func String(key, value string) zap.Field { return zap.String(key, value) }
func Bool(key string, value bool) zap.Field { return zap.Bool(key, value) }
func Int(key string, value int) zap.Field { return zap.Int(key, value) }
func Duration(key string, d time.Duration) zap.Field { return zap.Duration(key, d) }

// ErrorField is zap.Error under a name that does not clash with util.Error.
func ErrorField(err error) zap.Field { return zap.Error(err) }
