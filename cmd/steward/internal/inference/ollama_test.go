// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/steward/pkg/logging"
)

func TestOllamaGenerate(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req ollamaGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotPrompt = req.Prompt
		assert.Equal(t, "llama3.2:1b", req.Model)
		assert.False(t, req.Stream)

		json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "ACTION=NoAction"})
	}))
	defer srv.Close()

	backend := NewOllamaBackend(srv.URL, "llama3.2:1b", 1<<16, logging.Discard())
	out, err := backend.Generate(context.Background(), "what should I do")
	require.NoError(t, err)
	assert.Equal(t, "ACTION=NoAction", out)
	assert.Equal(t, "what should I do", gotPrompt)
}

func TestOllamaGenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal failure", http.StatusInternalServerError)
	}))
	defer srv.Close()

	backend := NewOllamaBackend(srv.URL, "llama3.2:1b", 1<<16, logging.Discard())
	_, err := backend.Generate(context.Background(), "prompt")
	require.Error(t, err)

	var ierr *Error
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, BackendUnreachable, ierr.Kind)
}

func TestOllamaGenerateModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": `model "missing:latest" not found`})
	}))
	defer srv.Close()

	backend := NewOllamaBackend(srv.URL, "missing:latest", 1<<16, logging.Discard())
	_, err := backend.Generate(context.Background(), "prompt")
	require.Error(t, err)

	var ierr *Error
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, BackendRejected, ierr.Kind)
	assert.False(t, ierr.Retryable())
	assert.Contains(t, err.Error(), "ollama pull missing:latest")
}

func TestOllamaGenerateUnreachable(t *testing.T) {
	// A server that is immediately closed leaves a port nothing listens on.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	backend := NewOllamaBackend(srv.URL, "llama3.2:1b", 1<<16, logging.Discard())
	_, err := backend.Generate(context.Background(), "prompt")
	require.Error(t, err)

	var ierr *Error
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, BackendUnreachable, ierr.Kind)
	assert.True(t, ierr.Retryable())
}

func TestOllamaGenerateResponseTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: strings.Repeat("x", 4096)})
	}))
	defer srv.Close()

	backend := NewOllamaBackend(srv.URL, "llama3.2:1b", 1024, logging.Discard())
	_, err := backend.Generate(context.Background(), "prompt")
	require.Error(t, err)

	var ierr *Error
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, ResponseTooLarge, ierr.Kind)
	assert.False(t, ierr.Retryable())
}

func TestOllamaVerifyModelPresent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		json.NewEncoder(w).Encode(ollamaTagsResponse{
			Models: []struct {
				Name string `json:"name"`
			}{{Name: "llama3.2:1b"}, {Name: "qwen2.5:3b"}},
		})
	}))
	defer srv.Close()

	backend := NewOllamaBackend(srv.URL, "llama3.2:1b", 1<<16, logging.Discard())
	assert.NoError(t, backend.Verify(context.Background()))
}

func TestOllamaVerifyModelMissingIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaTagsResponse{})
	}))
	defer srv.Close()

	backend := NewOllamaBackend(srv.URL, "llama3.2:1b", 1<<16, logging.Discard())
	assert.NoError(t, backend.Verify(context.Background()))
}

func TestOllamaVerifyUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	backend := NewOllamaBackend(srv.URL, "llama3.2:1b", 1<<16, logging.Discard())
	err := backend.Verify(context.Background())
	require.Error(t, err)

	var ierr *Error
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, BackendUnreachable, ierr.Kind)
}

func TestReadBounded(t *testing.T) {
	data, tooLarge, err := readBounded(strings.NewReader("hello"), 10)
	require.NoError(t, err)
	assert.False(t, tooLarge)
	assert.Equal(t, "hello", string(data))

	_, tooLarge, err = readBounded(strings.NewReader("hello world"), 5)
	require.NoError(t, err)
	assert.True(t, tooLarge)
}
