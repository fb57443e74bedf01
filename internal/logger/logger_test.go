package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}

func TestJSONHandlerByDefault(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newHandler(&buf, Config{Level: slog.LevelInfo}))
	log.Debug("hidden")
	log.Info("job advanced", "job_id", "abc", "step", "BUILD_DOCS")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "job advanced", line["msg"])
	assert.Equal(t, "abc", line["job_id"])
	assert.Equal(t, "BUILD_DOCS", line["step"])
}

func TestTextHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newHandler(&buf, Config{Level: slog.LevelDebug, Format: "text"}))
	log.Debug("tick", "found", false)
	assert.Contains(t, buf.String(), "msg=tick found=false")
}
