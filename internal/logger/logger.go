package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log formats accepted by New
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// encoderConfig is shared by both formats so field names stay stable across them
func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func level(debugMode bool) zap.AtomicLevel {
	if debugMode {
		return zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zap.NewAtomicLevelAt(zapcore.InfoLevel)
}

// NewProductionLogger creates a JSON logger. Item failures are logged at error
// level, so stack traces are kept for DPanic and above only.
func NewProductionLogger(debugMode bool, fields ...zap.Field) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = level(debugMode)
	config.Encoding = FormatJSON
	config.EncoderConfig = encoderConfig()
	config.Sampling = nil

	return config.Build(zap.AddStacktrace(zapcore.DPanicLevel), zap.Fields(fields...))
}

// NewDevelopmentLogger creates a console logger for local runs and the CLI
func NewDevelopmentLogger(debugMode bool, fields ...zap.Field) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.Level = level(debugMode)
	config.EncoderConfig = encoderConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	return config.Build(zap.AddStacktrace(zapcore.DPanicLevel), zap.Fields(fields...))
}

// New builds a logger for the given format. fields are attached to every entry.
func New(format string, debugMode bool, fields ...zap.Field) (*zap.Logger, error) {
	switch format {
	case FormatJSON, "":
		return NewProductionLogger(debugMode, fields...)
	case FormatConsole:
		return NewDevelopmentLogger(debugMode, fields...)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// Sync flushes any buffered log entries. This should be called before application exit.
// It's safe to call Sync() multiple times.
func Sync(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	return logger.Sync()
}
