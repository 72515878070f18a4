// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/steward/pkg/logging"
)

var tracer = otel.Tracer("steward.inference")

// OllamaBackend talks to an Ollama server's native generate API.
type OllamaBackend struct {
	httpClient       *http.Client
	baseURL          string
	model            string
	maxResponseBytes int64
	logger           *logging.Logger
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewOllamaBackend creates a backend for the given base URL and model.
// The per-call timeout is the Gateway's job, so the http.Client holds
// none of its own.
func NewOllamaBackend(baseURL, model string, maxResponseBytes int64, logger *logging.Logger) *OllamaBackend {
	if logger == nil {
		logger = logging.Discard()
	}
	return &OllamaBackend{
		httpClient:       &http.Client{},
		baseURL:          strings.TrimSuffix(baseURL, "/"),
		model:            model,
		maxResponseBytes: maxResponseBytes,
		logger:           logger,
	}
}

// Name implements Backend.
func (o *OllamaBackend) Name() string { return "ollama" }

// Generate implements Backend.
func (o *OllamaBackend) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "OllamaBackend.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))

	payload := ollamaGenerateRequest{Model: o.model, Prompt: prompt, Stream: false}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return "", rejected(fmt.Errorf("failed to marshal request to Ollama: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", rejected(fmt.Errorf("failed to create request to Ollama: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", unreachable(fmt.Errorf("Ollama API call failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, tooLarge, err := readBounded(resp.Body, o.maxResponseBytes)
	if err != nil {
		span.RecordError(err)
		return "", unreachable(fmt.Errorf("failed to read response body from Ollama: %w", err))
	}
	if tooLarge {
		err := fmt.Errorf("Ollama response exceeded %d bytes", o.maxResponseBytes)
		span.RecordError(err)
		return "", &Error{Kind: ResponseTooLarge, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", o.statusError(resp.StatusCode, respBody)
	}

	var ollamaResp ollamaGenerateResponse
	if err := json.Unmarshal(respBody, &ollamaResp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Error("failed to parse JSON response from Ollama", "error", err)
		return "", unreachable(fmt.Errorf("failed to parse Ollama response: %w", err))
	}
	return ollamaResp.Response, nil
}

// Verify implements Backend: lists the server's models and warns with
// a pull hint when the configured one is absent. A missing model is
// not fatal; an unreachable server is.
func (o *OllamaBackend) Verify(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return rejected(err)
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return unreachable(fmt.Errorf("Ollama is not reachable at %s: %w", o.baseURL, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _, _ := readBounded(resp.Body, 4096)
		return o.statusError(resp.StatusCode, body)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&tags); err != nil {
		return unreachable(fmt.Errorf("failed to parse Ollama model list: %w", err))
	}
	for _, m := range tags.Models {
		if m.Name == o.model {
			o.logger.Info("Ollama model available", "model", o.model)
			return nil
		}
	}
	o.logger.Warn("model not found on Ollama server, pull it with: ollama pull "+o.model,
		"model", o.model)
	return nil
}

func (o *OllamaBackend) statusError(status int, body []byte) error {
	if status == http.StatusNotFound {
		var errResp struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &errResp); err == nil &&
			strings.Contains(errResp.Error, "model") && strings.Contains(errResp.Error, "not found") {
			o.logger.Warn("Ollama model not found", "model", o.model)
			return rejected(fmt.Errorf("model %q not found, run: ollama pull %s", o.model, o.model))
		}
	}
	o.logger.Error("Ollama returned an error", "status_code", status, "response", string(body))
	err := fmt.Errorf("Ollama failed with status %d: %s", status, string(body))
	if status >= 500 {
		return unreachable(err)
	}
	return rejected(err)
}

// readBounded reads at most max bytes and reports whether the body
// was larger than that.
func readBounded(r io.Reader, max int64) ([]byte, bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > max {
		return nil, true, nil
	}
	return data, false, nil
}
