package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewETLLogger_WritesToFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "etl.log")

	logger, err := NewETLLogger(LoggerOptions{Verbose: true, File: logFile})
	require.NoError(t, err)

	logger.Info("Загружено %d таблиц", 3)
	logger.Debug("отладка %s", "включена")
	logger.LogPhaseComplete("export", 2, time.Second)
	logger.Sync()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Загружено 3 таблиц")
	assert.Contains(t, string(data), "отладка включена")
	assert.Contains(t, string(data), `"phase":"export"`)
}

func TestETLLogger_DebugSuppressedWithoutVerbose(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "etl.log")

	logger, err := NewETLLogger(LoggerOptions{File: logFile})
	require.NoError(t, err)

	logger.Debug("не должно попасть в лог")
	logger.Warn("предупреждение")
	logger.Sync()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "не должно попасть в лог")
	assert.Contains(t, string(data), "предупреждение")
}

func TestNewETLLogger_BadFile(t *testing.T) {
	_, err := NewETLLogger(LoggerOptions{File: filepath.Join(t.TempDir(), "missing", "etl.log")})
	assert.Error(t, err)
}

func TestNewNopLogger(t *testing.T) {
	logger := NewNopLogger()
	logger.Info("ничего")
	logger.Error("ничего")
	assert.NotNil(t, logger.Zap())
}

func TestNewETLLogger_Level(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "etl.log")

	logger, err := NewETLLogger(LoggerOptions{Level: "warn", File: logFile})
	require.NoError(t, err)
	assert.Equal(t, "warn", logger.Level())

	logger.Info("информация скрыта")
	logger.Warn("предупреждение видно")

	require.NoError(t, logger.SetLevel("debug"))
	logger.Debug("отладка после смены уровня")
	assert.Error(t, logger.SetLevel("loud"))
	assert.Equal(t, "debug", logger.Level())
	logger.Sync()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "информация скрыта")
	assert.Contains(t, string(data), "предупреждение видно")
	assert.Contains(t, string(data), "отладка после смены уровня")
}

func TestNewETLLogger_VerboseOverridesLevel(t *testing.T) {
	logger, err := NewETLLogger(LoggerOptions{Level: "error", Verbose: true})
	require.NoError(t, err)
	assert.Equal(t, "debug", logger.Level())
}

func TestNewETLLogger_BadLevel(t *testing.T) {
	_, err := NewETLLogger(LoggerOptions{Level: "loud"})
	assert.Error(t, err)
}
