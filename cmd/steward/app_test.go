// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/steward/cmd/steward/config"
	"github.com/AleutianAI/steward/pkg/logging"
)

func TestBuildBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	logger := logging.Discard()

	backend, err := buildBackend(cfg, logger)
	require.NoError(t, err)
	assert.Equal(t, "ollama", backend.Name())

	cfg.Backend = "openai"
	backend, err = buildBackend(cfg, logger)
	require.NoError(t, err)
	assert.Equal(t, "openai", backend.Name())

	cfg.Backend = "vllm"
	_, err = buildBackend(cfg, logger)
	assert.Error(t, err)
}

func TestNewAppFromConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "steward.yaml")
	yaml := "log_level: error\naudit:\n  dir: " + filepath.Join(dir, "audit") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	app, err := newApp(path)
	require.NoError(t, err)
	defer app.Close()

	assert.Equal(t, "ollama", app.gateway.BackendName())
	assert.NotNil(t, app.controller)
	assert.DirExists(t, filepath.Join(dir, "audit"))
}

func TestCommandWiring(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"ask", "watch", "check", "status", "audit"} {
		assert.True(t, names[want], "command %q must be registered", want)
	}
}
