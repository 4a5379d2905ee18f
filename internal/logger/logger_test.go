package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestNew(t *testing.T) {
	l, err := New("debug", true)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestWithBroadcast(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	var lines []string

	l := WithBroadcast(zap.New(core), func(s string) { lines = append(lines, s) })
	l.Named("worker").Info("navigating", zap.String("user", "alice"))
	l.Info("plain")

	assert.Equal(t, []string{"[worker] navigating", "plain"}, lines)
	assert.Equal(t, 2, logs.Len())
}
