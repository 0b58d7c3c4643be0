package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelDebug, Format: FormatJSON}, &buf)

	logger.WithComponent("registry").WithCycle("abc").Info("merged trace", "hops", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "merged trace", entry["msg"])
	assert.Equal(t, "registry", entry["component"])
	assert.Equal(t, "abc", entry["cycle_id"])
	assert.EqualValues(t, 3, entry["hops"])
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level   LogLevel
		debugOn bool
		warnOn  bool
	}{
		{LevelDebug, true, true},
		{LevelInfo, false, true},
		{LevelError, false, false},
		{"bogus", false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter(Config{Level: tt.level}, &buf)

			logger.Debug("debug line")
			assert.Equal(t, tt.debugOn, bytes.Contains(buf.Bytes(), []byte("debug line")))

			logger.Warn("warn line")
			assert.Equal(t, tt.warnOn, bytes.Contains(buf.Bytes(), []byte("warn line")))
		})
	}
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "topomap.log")
	logger, err := New(Config{Level: LevelInfo, Output: path})
	require.NoError(t, err)
	logger.Info("hello")
	assert.FileExists(t, path)
}

func TestErrorScanFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Format: FormatJSON}, &buf)
	logger.ErrorScan("probe failed", "10.0.0.9", assert.AnError)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "10.0.0.9", entry["target"])
	assert.Equal(t, assert.AnError.Error(), entry["error"])
}
