package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestChannel_TagsEntries(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewZapAdapter(zap.New(core))

	Channel(log, "ext.cleantalk").Info("need approval", map[string]interface{}{"method": "isAllowUser"})

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Equal(t, "need approval", entries[0].Message)

	ctx := entries[0].ContextMap()
	assert.Equal(t, "ext.cleantalk", ctx[ChannelField])
	assert.Equal(t, "isAllowUser", ctx["method"])
}

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level   string
		enabled zapcore.Level
		skipped zapcore.Level
	}{
		{level: "debug", enabled: zapcore.DebugLevel, skipped: zapcore.DebugLevel - 1},
		{level: "info", enabled: zapcore.InfoLevel, skipped: zapcore.DebugLevel},
		{level: "warn", enabled: zapcore.WarnLevel, skipped: zapcore.InfoLevel},
		{level: "error", enabled: zapcore.ErrorLevel, skipped: zapcore.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l := New(tt.level, "json")
			assert.True(t, l.Core().Enabled(tt.enabled))
			assert.False(t, l.Core().Enabled(tt.skipped))
		})
	}
}

func TestNoOpLogger(t *testing.T) {
	log := NewNoOpLogger()
	assert.NotPanics(t, func() {
		log.WithError(assert.AnError).With(map[string]interface{}{"k": "v"}).Error("ignored", nil)
	})
}

func TestNewWithOutput_UnknownLevelFallsBackToInfo(t *testing.T) {
	l, err := NewWithOutput("verbose", "console", "stderr")
	assert.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestNewWithOutput_BadPath(t *testing.T) {
	_, err := NewWithOutput("info", "json", "/nonexistent-dir/antispam.log")
	assert.Error(t, err)
}

func TestWithFields_ErrorValues(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapAdapter(zap.New(core))

	log.WithFields(map[string]interface{}{"cause": assert.AnError, "attempt": 2}).Warn("retrying", nil)

	entries := logs.All()
	assert.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, assert.AnError.Error(), ctx["cause"])
	assert.Equal(t, int64(2), ctx["attempt"])
}
