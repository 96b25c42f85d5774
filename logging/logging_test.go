package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{" DEBUG ", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStructuredAttributes(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(CloseLogger)

	LogInfo("manifest written", "path", "out/csv/unique_images.csv", "rows", 3)
	LogImageProcessed("a.jpg", "id-1", nil)
	LogImageProcessed("b.jpg", "id-2", errors.New("bad header"))

	out := buf.String()
	assert.Contains(t, out, `msg="manifest written"`)
	assert.Contains(t, out, "rows=3")
	assert.Contains(t, out, `msg="image processed" name=a.jpg image_id=id-1`)
	assert.Contains(t, out, `level=WARN msg="image failed" name=b.jpg`)
	assert.Contains(t, out, `error="bad header"`)
}

func TestSetupLoggerWritesFileAtLevel(t *testing.T) {
	CloseLogger()
	path := filepath.Join(t.TempDir(), "imagededup.log")

	require.NoError(t, SetupLogger(path, "warn", true))
	t.Cleanup(CloseLogger)

	LogInfo("below threshold")
	LogWarning("recoverable failure", "kind", "decode")
	CloseLogger()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "below threshold")

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "recoverable failure", record["msg"])
	assert.Equal(t, "decode", record["kind"])
}

func TestSetupLoggerRejectsUnknownLevel(t *testing.T) {
	CloseLogger()
	assert.Error(t, SetupLogger("", "loud", false))
}
