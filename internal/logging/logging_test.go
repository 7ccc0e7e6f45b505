package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "warn", Format: "json", Output: &buf})
	require.NoError(t, err)

	l.Info("hidden")
	Component(l, "recorder").Warn("shown", "frames", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "recorder", rec["component"])
	assert.EqualValues(t, 3, rec["frames"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "info", Format: "text", Output: &buf})
	require.NoError(t, err)
	l.Info("query done", "video", "abc")
	assert.Contains(t, buf.String(), "query done")
	assert.Contains(t, buf.String(), "abc")

	_, err = New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestDisable(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Format: "json", Output: &buf})
	require.NoError(t, err)
	SetDefault(l)

	Disable()
	L().Info("dropped")
	assert.Empty(t, buf.String())

	Enable()
	L().Info("kept")
	assert.Contains(t, buf.String(), "kept")
}
