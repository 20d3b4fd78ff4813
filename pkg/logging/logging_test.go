package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"DEBUG", LevelDebug},
		{"WARNING", LevelWarn},
		{" Error ", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat("json"))
	assert.Equal(t, FormatJSON, ParseFormat("JSON"))
	assert.Equal(t, FormatText, ParseFormat("text"))
	assert.Equal(t, FormatText, ParseFormat("yaml"))
}

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})

	log.Debug("hidden")
	log.Info("listener bound", "port", 8080)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "listener bound", rec["msg"])
	assert.EqualValues(t, 8080, rec["port"])
}

func TestOpen_FileOutput(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "mockserver.log")

	log, closer := Open(Config{
		Level:  LevelInfo,
		Format: FormatText,
		Output: &console,
		File:   FileConfig{Path: path, MaxSizeMB: 1},
	})
	log.With("component", "test").Info("hello", "n", 1)
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "msg=hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "test", rec["component"])
}

func TestNop(t *testing.T) {
	log := Nop()
	require.NotNil(t, log)
	log.Info("discarded")
}
