package zaplog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, observed := observer.New(level)

	return New(zap.New(core)), observed
}

func TestLoggerLevelsAndFields(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.DebugLevel)
	failure := errors.New("broker down")

	logger.Debug("claimed", "count", 3)
	logger.Info("started", "workers", 2)
	logger.Warn("publish failed", "topic", "orders.created", "err", failure)
	logger.Error("worker panic", "worker", 1)

	entries := observed.AllUntimed()
	require.Len(t, entries, 4)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, int64(3), entries[0].ContextMap()["count"])
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, "orders.created", entries[2].ContextMap()["topic"])
	assert.Equal(t, "broker down", entries[2].ContextMap()["err"])
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "worker panic", entries[3].Message)
}

func TestLoggerRespectsLevel(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.WarnLevel)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")

	assert.Equal(t, 1, observed.Len())
}

func TestLoggerWith(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.InfoLevel)

	logger.With("component", "sender").Info("tick")

	entries := observed.FilterField(zap.String("component", "sender")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "tick", entries[0].Message)
}

func TestNewNil(t *testing.T) {
	logger := New(nil)
	logger.Info("discarded")
	assert.NoError(t, logger.Sync())
}
