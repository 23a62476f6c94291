package util

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"DEBUG":   zapcore.DebugLevel,
		"warning": zapcore.WarnLevel,
		" error ": zapcore.ErrorLevel,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNewLoggerWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	logger, err := NewLogger(LogOptions{Environment: "production", Level: "debug", Format: "json", OutputPaths: []string{path}})
	require.NoError(t, err)

	logger.Named("purchase").Info("number purchased", zap.String("request_id", "777"))
	logger.Debug("debug entry")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "purchase", entry["logger"])
	assert.Equal(t, "777", entry["request_id"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewLoggerRejectsBadSettings(t *testing.T) {
	_, err := NewLogger(LogOptions{Format: "xml"})
	assert.Error(t, err)

	_, err = NewLogger(LogOptions{Level: "loud"})
	assert.Error(t, err)
}
