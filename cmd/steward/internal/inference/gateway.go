// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package inference talks to the text-generation backend.
//
// The Gateway wraps a Backend transport with the loop's reliability
// contract: a hard per-call timeout, bounded retry on transient
// failures only, and a response size cap that protects the parser.
package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/steward/pkg/logging"
)

// FailureKind classifies inference failures for retry and
// circuit-breaking decisions.
type FailureKind int

const (
	// BackendUnreachable covers connection refusal, timeouts and
	// 5xx responses. Retryable within a cycle; repeated occurrences
	// open the circuit across cycles.
	BackendUnreachable FailureKind = iota

	// BackendRejected covers 4xx-equivalent responses. The request
	// itself is wrong; retrying the same request is pointless.
	BackendRejected

	// ResponseTooLarge means the backend's output exceeded the cap
	// and was discarded to protect downstream parsing.
	ResponseTooLarge
)

// String returns the failure kind name used in logs and metrics labels.
func (k FailureKind) String() string {
	switch k {
	case BackendUnreachable:
		return "backend_unreachable"
	case BackendRejected:
		return "backend_rejected"
	case ResponseTooLarge:
		return "response_too_large"
	default:
		return "unknown"
	}
}

// Error is a classified inference failure.
type Error struct {
	Kind FailureKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("inference failed (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether retrying the same request can help.
func (e *Error) Retryable() bool { return e.Kind == BackendUnreachable }

// unreachable wraps err as a BackendUnreachable failure.
func unreachable(err error) *Error {
	return &Error{Kind: BackendUnreachable, Err: err}
}

// rejected wraps err as a BackendRejected failure.
func rejected(err error) *Error {
	return &Error{Kind: BackendRejected, Err: err}
}

// Backend is one inference transport (Ollama, OpenAI-compatible).
// Implementations return *Error so the Gateway can classify failures.
type Backend interface {
	// Generate sends one prompt and returns the raw completion text.
	// An empty string with a nil error is a valid response.
	Generate(ctx context.Context, prompt string) (string, error)

	// Verify checks the backend is reachable and the configured model
	// is available. Called once at startup.
	Verify(ctx context.Context) error

	// Name identifies the transport in logs.
	Name() string
}

// Gateway enforces timeout and retry policy over a Backend.
//
// # Retry policy
//
//   - BackendUnreachable: retried up to MaxRetries times with a short
//     linear backoff.
//   - BackendRejected, ResponseTooLarge: never retried.
//   - Successful empty response: returned as-is. Empty output is the
//     model's way of saying nothing; it is not a failure.
type Gateway struct {
	backend    Backend
	timeout    time.Duration
	maxRetries int
	logger     *logging.Logger

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGateway wraps backend with the given per-call timeout and
// transient retry budget.
func NewGateway(backend Backend, timeout time.Duration, maxRetries int, logger *logging.Logger) *Gateway {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Gateway{
		backend:    backend,
		timeout:    timeout,
		maxRetries: maxRetries,
		logger:     logger,
		sleep:      sleepCtx,
	}
}

// Infer sends the prompt under the gateway's policy. On failure the
// returned error is always a classified *Error, or the parent
// context's error when the caller cancelled.
func (g *Gateway) Infer(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		out, err := g.backend.Generate(callCtx, prompt)
		cancel()

		if err == nil {
			return out, nil
		}
		lastErr = classify(ctx, err)

		var ierr *Error
		if !errors.As(lastErr, &ierr) || !ierr.Retryable() || attempt == g.maxRetries {
			return "", lastErr
		}

		backoff := time.Duration(attempt+1) * 250 * time.Millisecond
		g.logger.Warn("inference retry",
			"backend", g.backend.Name(),
			"attempt", attempt+1,
			"max_retries", g.maxRetries,
			"backoff", backoff.String(),
			"error", err.Error(),
		)
		if err := g.sleep(ctx, backoff); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

// Verify delegates to the backend's startup check under the timeout.
func (g *Gateway) Verify(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if err := g.backend.Verify(callCtx); err != nil {
		return classify(ctx, err)
	}
	return nil
}

// BackendName exposes the transport name for status reporting.
func (g *Gateway) BackendName() string { return g.backend.Name() }

// classify normalizes transport errors. A deadline that expired while
// the parent is still live is the per-call timeout, which is a
// transient backend failure, not a caller cancellation.
func classify(parent context.Context, err error) error {
	var ierr *Error
	if errors.As(err, &ierr) {
		return err
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return unreachable(fmt.Errorf("call timed out: %w", err))
	}
	return unreachable(err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
