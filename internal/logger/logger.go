// Package logger builds the zap loggers used across rightblock.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a JSON zap logger at the given level.
func New(level string, development bool) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	zapCfg.Level = zap.NewAtomicLevelAt(parseLevel(level))

	// every worker step should be visible while developing
	if development {
		zapCfg.Sampling = nil
	}

	z, err := zapCfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return z, nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// WithBroadcast mirrors every entry's message to publish as "[name] message".
// Used to put worker progress on the debug channel.
func WithBroadcast(l *zap.Logger, publish func(string)) *zap.Logger {
	return l.WithOptions(zap.Hooks(func(e zapcore.Entry) error {
		if e.LoggerName != "" {
			publish(fmt.Sprintf("[%s] %s", e.LoggerName, e.Message))
		} else {
			publish(e.Message)
		}
		return nil
	}))
}
