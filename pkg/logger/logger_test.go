package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func resetGlobal(t *testing.T) {
	t.Cleanup(func() {
		mu.Lock()
		globalLogger = zap.NewNop()
		mu.Unlock()
	})
}

func TestInitConfiguresGlobalLogger(t *testing.T) {
	resetGlobal(t)

	require.NoError(t, Init("debug"))
	require.True(t, Logger().Core().Enabled(zap.DebugLevel))
}

func TestInitFallsBackToInfo(t *testing.T) {
	resetGlobal(t)

	require.NoError(t, InitConsole("chatty"))
	require.False(t, Logger().Core().Enabled(zap.DebugLevel))
	require.True(t, Logger().Core().Enabled(zap.InfoLevel))
}

func TestLoggingHelpersEmitEntries(t *testing.T) {
	resetGlobal(t)
	core, recorded := observer.New(zap.DebugLevel)
	globalLogger = zap.New(core)

	Info("info message", zap.String("k", "v"))
	Error("error message")
	Warn("warn message")
	Debug("debug message")

	entries := recorded.All()
	require.Len(t, entries, 4)
	want := []string{"info message", "error message", "warn message", "debug message"}
	for i, entry := range entries {
		require.Equal(t, want[i], entry.Message)
	}
}

func TestWithModuleAddsField(t *testing.T) {
	resetGlobal(t)
	core, recorded := observer.New(zap.InfoLevel)
	globalLogger = zap.New(core)

	WithModule("reconciler").Info("module test")

	entries := recorded.All()
	require.Len(t, entries, 1)
	require.Equal(t, "reconciler", entries[0].ContextMap()["module"])
}
