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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/steward/pkg/logging"
)

// mockBackend scripts Generate results per call.
type mockBackend struct {
	generateFunc func(ctx context.Context, prompt string) (string, error)
	verifyFunc   func(ctx context.Context) error
	calls        int
}

func (m *mockBackend) Generate(ctx context.Context, prompt string) (string, error) {
	m.calls++
	return m.generateFunc(ctx, prompt)
}

func (m *mockBackend) Verify(ctx context.Context) error {
	if m.verifyFunc != nil {
		return m.verifyFunc(ctx)
	}
	return nil
}

func (m *mockBackend) Name() string { return "mock" }

func newTestGateway(b Backend, maxRetries int) *Gateway {
	g := NewGateway(b, time.Second, maxRetries, logging.Discard())
	g.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return g
}

func TestGatewayInferSuccess(t *testing.T) {
	backend := &mockBackend{
		generateFunc: func(ctx context.Context, prompt string) (string, error) {
			return "ACTION=ReportStatus", nil
		},
	}
	g := newTestGateway(backend, 2)

	out, err := g.Infer(context.Background(), "status please")
	require.NoError(t, err)
	assert.Equal(t, "ACTION=ReportStatus", out)
	assert.Equal(t, 1, backend.calls)
}

func TestGatewayInferEmptyResponseIsSuccess(t *testing.T) {
	backend := &mockBackend{
		generateFunc: func(ctx context.Context, prompt string) (string, error) {
			return "", nil
		},
	}
	g := newTestGateway(backend, 2)

	out, err := g.Infer(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 1, backend.calls, "an empty success must not be retried")
}

func TestGatewayInferRetriesUnreachable(t *testing.T) {
	backend := &mockBackend{}
	backend.generateFunc = func(ctx context.Context, prompt string) (string, error) {
		if backend.calls < 3 {
			return "", unreachable(errors.New("connection refused"))
		}
		return "recovered", nil
	}
	g := newTestGateway(backend, 2)

	out, err := g.Infer(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.Equal(t, 3, backend.calls)
}

func TestGatewayInferExhaustsRetries(t *testing.T) {
	backend := &mockBackend{
		generateFunc: func(ctx context.Context, prompt string) (string, error) {
			return "", unreachable(errors.New("connection refused"))
		},
	}
	g := newTestGateway(backend, 2)

	_, err := g.Infer(context.Background(), "prompt")
	require.Error(t, err)

	var ierr *Error
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, BackendUnreachable, ierr.Kind)
	assert.Equal(t, 3, backend.calls, "initial attempt plus two retries")
}

func TestGatewayInferNoRetryOnRejected(t *testing.T) {
	backend := &mockBackend{
		generateFunc: func(ctx context.Context, prompt string) (string, error) {
			return "", rejected(errors.New("model not found"))
		},
	}
	g := newTestGateway(backend, 5)

	_, err := g.Infer(context.Background(), "prompt")
	require.Error(t, err)

	var ierr *Error
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, BackendRejected, ierr.Kind)
	assert.Equal(t, 1, backend.calls)
}

func TestGatewayInferNoRetryOnTooLarge(t *testing.T) {
	backend := &mockBackend{
		generateFunc: func(ctx context.Context, prompt string) (string, error) {
			return "", &Error{Kind: ResponseTooLarge, Err: errors.New("too big")}
		},
	}
	g := newTestGateway(backend, 5)

	_, err := g.Infer(context.Background(), "prompt")
	require.Error(t, err)

	var ierr *Error
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, ResponseTooLarge, ierr.Kind)
	assert.Equal(t, 1, backend.calls)
}

func TestGatewayInferTimeoutIsUnreachable(t *testing.T) {
	backend := &mockBackend{
		generateFunc: func(ctx context.Context, prompt string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	g := NewGateway(backend, 10*time.Millisecond, 0, logging.Discard())
	g.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	_, err := g.Infer(context.Background(), "prompt")
	require.Error(t, err)

	var ierr *Error
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, BackendUnreachable, ierr.Kind)
	assert.True(t, ierr.Retryable())
}

func TestGatewayInferCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	backend := &mockBackend{
		generateFunc: func(callCtx context.Context, prompt string) (string, error) {
			cancel()
			<-callCtx.Done()
			return "", callCtx.Err()
		},
	}
	g := newTestGateway(backend, 3)

	_, err := g.Infer(ctx, "prompt")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	var ierr *Error
	assert.False(t, errors.As(err, &ierr), "cancellation is not a backend failure")
	assert.Equal(t, 1, backend.calls)
}

func TestGatewayInferClassifiesRawErrors(t *testing.T) {
	backend := &mockBackend{
		generateFunc: func(ctx context.Context, prompt string) (string, error) {
			return "", fmt.Errorf("dial tcp: connection refused")
		},
	}
	g := newTestGateway(backend, 0)

	_, err := g.Infer(context.Background(), "prompt")
	require.Error(t, err)

	var ierr *Error
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, BackendUnreachable, ierr.Kind)
}

func TestGatewayVerify(t *testing.T) {
	backend := &mockBackend{
		verifyFunc: func(ctx context.Context) error {
			return unreachable(errors.New("no route to host"))
		},
	}
	g := newTestGateway(backend, 0)

	err := g.Verify(context.Background())
	require.Error(t, err)

	var ierr *Error
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, BackendUnreachable, ierr.Kind)
}

func TestFailureKindString(t *testing.T) {
	assert.Equal(t, "backend_unreachable", BackendUnreachable.String())
	assert.Equal(t, "backend_rejected", BackendRejected.String())
	assert.Equal(t, "response_too_large", ResponseTooLarge.String())
}

func TestErrorUnwrap(t *testing.T) {
	base := errors.New("root cause")
	err := unreachable(fmt.Errorf("wrapped: %w", base))
	assert.ErrorIs(t, err, base)
}
