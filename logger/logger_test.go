package logger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogLevelMapping(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, DebugLevel.zapLevel())
	assert.Equal(t, zapcore.WarnLevel, WarnLevel.zapLevel())
	assert.Equal(t, zapcore.ErrorLevel, ErrorLevel.zapLevel())
	assert.Equal(t, zapcore.InfoLevel, LogLevel("verbose").zapLevel())
}

func TestHelpersWriteThroughGlobalLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := globalLogger
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(prev) })

	Info("track imported", String("id", "abc"), Int64("size", 42))
	Warn("tag warning", ErrorField(errors.New("bad frame")))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "track imported", entries[0].Message)
	assert.Equal(t, "abc", entries[0].ContextMap()["id"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestBuildWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	l := build(DefaultConfig("INFO", path))

	l.Info("hello")
	_ = l.Sync() // stdout may refuse fsync

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
