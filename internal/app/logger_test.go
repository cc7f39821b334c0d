package app

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerHonorsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLoggerTo(&buf, &Config{LogFormat: "pretty", LogLevel: "warn"})

	logger.Info("ignored")
	require.Zero(t, buf.Len())

	logger.Warn("kept")
	require.Contains(t, buf.String(), "kept")
}

func TestNewLoggerFormatAndLevelFallback(t *testing.T) {
	var buf bytes.Buffer
	logger := newLoggerTo(&buf, &Config{LogFormat: "json", LogLevel: "verbose"})

	logger.Debug("below the info fallback")
	require.Zero(t, buf.Len())

	logger.Info("hola")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "hola", entry["msg"])
}
