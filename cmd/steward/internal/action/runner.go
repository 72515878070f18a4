// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package action

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// commandTimeout bounds any single external command. Power plan
// switches complete in well under a second on a healthy host.
const commandTimeout = 10 * time.Second

// CommandRunner executes an external command and returns its combined
// output. The production implementation shells out; tests substitute
// a mock so no test ever changes the host's power plan.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// execRunner runs commands with os/exec.
type execRunner struct{}

// NewExecRunner returns the production CommandRunner.
func NewExecRunner() CommandRunner { return execRunner{} }

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, name, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	out := strings.TrimSpace(buf.String())
	if err != nil {
		return out, fmt.Errorf("%s failed: %w (output: %s)", name, err, out)
	}
	return out, nil
}

// MockCommandRunner records calls and returns scripted results.
type MockCommandRunner struct {
	RunFunc func(ctx context.Context, name string, args ...string) (string, error)
	Calls   []MockCall
}

// MockCall is one recorded Run invocation.
type MockCall struct {
	Name string
	Args []string
}

func (m *MockCommandRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	m.Calls = append(m.Calls, MockCall{Name: name, Args: args})
	if m.RunFunc != nil {
		return m.RunFunc(ctx, name, args...)
	}
	return "", nil
}
