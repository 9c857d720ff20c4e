package logging

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/killallgit/dataset-importer/pkg/config"
)

func TestLevelWriter(t *testing.T) {
	tests := []struct {
		name  string
		min   Level
		line  string
		write bool
	}{
		{name: "debug dropped at info", min: LevelInfo, line: "2025/01/01 10:00:00 [DEBUG] polling", write: false},
		{name: "info kept at info", min: LevelInfo, line: "2025/01/01 10:00:00 [INFO] started", write: true},
		{name: "warn dropped at error", min: LevelError, line: "[WARN] slow", write: false},
		{name: "error kept at error", min: LevelError, line: "[ERROR] failed", write: true},
		{name: "untagged always kept", min: LevelError, line: "plain message", write: true},
		{name: "unknown tag kept", min: LevelError, line: "[GIN] 200 GET /health", write: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := NewLevelWriter(&buf, tt.min)
			n, err := w.Write([]byte(tt.line))
			require.NoError(t, err)
			assert.Equal(t, len(tt.line), n)
			if tt.write {
				assert.Equal(t, tt.line, buf.String())
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestSetup_File(t *testing.T) {
	defer log.SetOutput(os.Stderr)

	path := filepath.Join(t.TempDir(), "logs", "importer.log")
	closeLog, err := Setup(config.LoggingConfig{Level: "warn", Output: "file", FilePath: path, MaxSize: 1})
	require.NoError(t, err)

	log.Printf("[INFO] hidden")
	log.Printf("[WARN] visible")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "visible")
}

func TestSetup_Invalid(t *testing.T) {
	_, err := Setup(config.LoggingConfig{Output: "file"})
	assert.Error(t, err)

	_, err = Setup(config.LoggingConfig{Output: "syslog"})
	assert.Error(t, err)
}
