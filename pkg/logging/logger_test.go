// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCaptureLogger(level Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: level.toSlogLevel()})
	return New(Config{Level: level, Service: "test", Handler: handler}), &buf
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"Warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestLoggerWritesAttributes(t *testing.T) {
	logger, buf := newCaptureLogger(LevelInfo)
	logger.Info("cycle complete", "cycle_id", "abc123", "duration_ms", 42)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "cycle complete", entry["msg"])
	assert.Equal(t, "abc123", entry["cycle_id"])
	assert.Equal(t, "test", entry["service"])
}

func TestLoggerFiltersBelowLevel(t *testing.T) {
	logger, buf := newCaptureLogger(LevelWarn)
	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "kept")
}

func TestWithCarriesAttributes(t *testing.T) {
	logger, buf := newCaptureLogger(LevelInfo)
	child := logger.With("component", "loop")
	child.Info("tick")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "loop", entry["component"])
}

func TestFileLogging(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  dir,
		Service: "test",
		Quiet:   true,
	})
	logger.Info("persisted entry", "key", "value")
	require.NoError(t, logger.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "test_"))

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "persisted entry")
}

func TestCloseWithoutFileIsNil(t *testing.T) {
	logger := Discard()
	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())
}
