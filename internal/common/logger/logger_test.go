package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapWrapper_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapAdapter(zap.New(core))

	l.WithFields(map[string]interface{}{"ownerId": "u-1"}).
		Info("application saved", map[string]interface{}{"status": "in_progress"})
	l.WithError(errors.New("boom")).Error("save failed", nil)

	require.Equal(t, 2, logs.Len())
	first := logs.All()[0]
	assert.Equal(t, "application saved", first.Message)
	assert.Equal(t, "u-1", first.ContextMap()["ownerId"])
	assert.Equal(t, "in_progress", first.ContextMap()["status"])

	second := logs.All()[1]
	assert.Equal(t, zapcore.ErrorLevel, second.Level)
	assert.Equal(t, "boom", second.ContextMap()["error"])
}

func TestMapToZapFields_Errors(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewZapAdapter(zap.New(core))

	l.Warn("cache miss", map[string]interface{}{"cause": errors.New("redis down")})

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "redis down", logs.All()[0].ContextMap()["cause"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestZapAccessor(t *testing.T) {
	base := zap.NewNop()
	assert.Same(t, base, Zap(NewZapAdapter(base)))
	assert.NotNil(t, Zap(nil))

	structured := NewStructured("warn", "json")
	assert.False(t, Zap(structured).Core().Enabled(zapcore.InfoLevel))
	assert.True(t, Zap(structured).Core().Enabled(zapcore.WarnLevel))
}

func TestNewWithOptions_BadPathFallsBack(t *testing.T) {
	l := NewWithOptions(Options{Format: "json", OutputPaths: []string{"/nonexistent-dir/x/y.log"}})
	assert.NotNil(t, l)
}
