package destiny

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		config  *LoggingConfig
		wantErr bool
	}{
		{"default", nil, false},
		{"json_debug", &LoggingConfig{Level: "debug", Format: "json"}, false},
		{"console_warn", &LoggingConfig{Level: "warn", Format: "console"}, false},
		{"bad_level", &LoggingConfig{Level: "loud", Format: "json"}, true},
		{"bad_format", &LoggingConfig{Level: "info", Format: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
		})
	}
}

func TestZapLogger_Output(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	logger.Info("drew %s", Ball{Value: 7, Category: Primary})
	logger.Debug("pool size %d", 68)
	logger.Error("reading failed: %v", ErrReadingUnavailable)
	logger.With("session_id", "abc").Info("reset")

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, "drew PRIMARY 7", entries[0].Message)
	assert.Equal(t, zap.DebugLevel, entries[1].Level)
	assert.Contains(t, entries[2].Message, "DESTINY_3000")
	assert.Equal(t, "abc", entries[3].ContextMap()["session_id"])
}

func TestDefaultLoggers(t *testing.T) {
	assert.NotNil(t, NewDefaultLogger())
	assert.NotNil(t, NewZapLogger(nil))

	var logger Logger = NewSilentLogger()
	assert.NotPanics(t, func() {
		logger.Info("x %d", 1)
		logger.Error("x")
		logger.Debug("x")
	})
}
