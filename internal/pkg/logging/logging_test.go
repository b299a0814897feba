package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "proxima-api", "info", "json")

	logger.Debug("hidden")
	logger.Info("catalog loaded", "entities", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "catalog loaded", rec["msg"])
	assert.Equal(t, "proxima-api", rec["service"])
	assert.EqualValues(t, 3, rec["entities"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "proxima-api", "debug", "text").Debug("viewport applied")

	assert.True(t, strings.Contains(buf.String(), "msg=\"viewport applied\""))
	assert.True(t, strings.Contains(buf.String(), "service=proxima-api"))
}
