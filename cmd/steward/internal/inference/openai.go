// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package inference

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/steward/pkg/logging"
)

// OpenAIBackend talks to any OpenAI-compatible chat completion server
// (llama.cpp server, vLLM, LM Studio, or OpenAI itself).
type OpenAIBackend struct {
	client           *openai.Client
	model            string
	maxResponseBytes int64
	logger           *logging.Logger
}

// NewOpenAIBackend creates a backend against baseURL's /v1 API.
// The API key comes from STEWARD_API_KEY; local servers generally
// accept any non-empty value.
func NewOpenAIBackend(baseURL, model string, maxResponseBytes int64, logger *logging.Logger) *OpenAIBackend {
	if logger == nil {
		logger = logging.Discard()
	}
	apiKey := os.Getenv("STEWARD_API_KEY")
	if apiKey == "" {
		apiKey = "local"
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimSuffix(baseURL, "/") + "/v1"

	return &OpenAIBackend{
		client:           openai.NewClientWithConfig(cfg),
		model:            model,
		maxResponseBytes: maxResponseBytes,
		logger:           logger,
	}
}

// Name implements Backend.
func (o *OpenAIBackend) Name() string { return "openai" }

// Generate implements Backend.
func (o *OpenAIBackend) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "OpenAIBackend.Generate")
	defer span.End()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		span.RecordError(err)
		return "", classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		// No choices means the model declined to answer; treat it as
		// an empty (NoAction) response rather than a failure.
		o.logger.Warn("backend returned no choices")
		return "", nil
	}

	content := resp.Choices[0].Message.Content
	if int64(len(content)) > o.maxResponseBytes {
		return "", &Error{
			Kind: ResponseTooLarge,
			Err:  fmt.Errorf("completion exceeded %d bytes", o.maxResponseBytes),
		}
	}
	return content, nil
}

// Verify implements Backend by listing models on the server.
func (o *OpenAIBackend) Verify(ctx context.Context) error {
	models, err := o.client.ListModels(ctx)
	if err != nil {
		return classifyOpenAIError(err)
	}
	for _, m := range models.Models {
		if m.ID == o.model {
			o.logger.Info("model available", "model", o.model)
			return nil
		}
	}
	o.logger.Warn("configured model not listed by the server", "model", o.model)
	return nil
}

// classifyOpenAIError maps SDK errors onto the gateway taxonomy:
// HTTP 4xx is a rejection, everything else is unreachable.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		wrapped := fmt.Errorf("backend API error: %w", err)
		if apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 {
			return rejected(wrapped)
		}
		return unreachable(wrapped)
	}
	return unreachable(fmt.Errorf("backend call failed: %w", err))
}
