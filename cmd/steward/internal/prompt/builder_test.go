// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package prompt

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/steward/cmd/steward/internal/intent"
	"github.com/AleutianAI/steward/cmd/steward/internal/sensors"
)

func testSnapshot() sensors.SystemSnapshot {
	pct := 85.0
	return sensors.SystemSnapshot{
		Timestamp:       time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC),
		CPUPercent:      42.5,
		MemoryPercent:   95.0,
		DiskPercent:     50.0,
		BatteryPercent:  &pct,
		BatteryCharging: true,
		TopProcesses: []sensors.ProcessInfo{
			{PID: 100, Name: "chrome.exe", CPUPercent: 12.5, MemoryBytes: 8_000_000_000},
			{PID: 200, Name: "code", CPUPercent: 3.0, MemoryBytes: 1_000_000_000},
			{PID: 300, Name: "sshd", CPUPercent: 0.1, MemoryBytes: 10_000_000},
		},
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	b := NewBuilder(8192, 10)
	snap := testSnapshot()

	first, err := b.Build(snap, "close chrome")
	require.NoError(t, err)
	second, err := b.Build(snap, "close chrome")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuildEmbedsGrammarContract(t *testing.T) {
	b := NewBuilder(8192, 10)

	out, err := b.Build(testSnapshot(), "")
	require.NoError(t, err)
	assert.Contains(t, out, intent.GrammarInstructions)
}

func TestBuildIncludesSnapshotAndRequest(t *testing.T) {
	b := NewBuilder(8192, 10)

	out, err := b.Build(testSnapshot(), "close chrome if using too much memory")
	require.NoError(t, err)

	assert.Contains(t, out, "CPU usage: 42.5%")
	assert.Contains(t, out, "Memory usage: 95.0%")
	assert.Contains(t, out, "Battery: 85% (charging)")
	assert.Contains(t, out, "memory usage is high")
	assert.Contains(t, out, "name=chrome.exe")
	assert.Contains(t, out, "User request: close chrome if using too much memory")
}

func TestBuildBackgroundModeHasNoUserRequest(t *testing.T) {
	b := NewBuilder(8192, 10)

	out, err := b.Build(testSnapshot(), "")
	require.NoError(t, err)
	assert.NotContains(t, out, "User request:")
	assert.Contains(t, out, "periodic background check")
}

func TestBuildOrdersProcessesByMemory(t *testing.T) {
	b := NewBuilder(8192, 10)

	out, err := b.Build(testSnapshot(), "")
	require.NoError(t, err)

	chrome := strings.Index(out, "name=chrome.exe")
	code := strings.Index(out, "name=code")
	sshd := strings.Index(out, "name=sshd")
	assert.True(t, chrome < code && code < sshd, "expected descending memory order")
}

func TestBuildCapsProcessCount(t *testing.T) {
	b := NewBuilder(16384, 2)

	out, err := b.Build(testSnapshot(), "")
	require.NoError(t, err)
	assert.Contains(t, out, "name=chrome.exe")
	assert.Contains(t, out, "name=code")
	assert.NotContains(t, out, "name=sshd")
}

func TestBuildTruncatesProcessesToFitBudget(t *testing.T) {
	snap := testSnapshot()
	snap.TopProcesses = nil
	for i := 0; i < 200; i++ {
		snap.TopProcesses = append(snap.TopProcesses, sensors.ProcessInfo{
			PID:         int32(i + 1),
			Name:        fmt.Sprintf("very-long-process-name-%04d", i),
			MemoryBytes: uint64(1_000_000 * (i + 1)),
		})
	}

	// Budget fits the grammar plus a handful of process lines.
	b := NewBuilder(2200, 50)
	out, err := b.Build(snap, "")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), 2200)
	assert.Contains(t, out, intent.GrammarInstructions)
}

func TestBuildFailsWhenBudgetImpossible(t *testing.T) {
	b := NewBuilder(100, 10)

	_, err := b.Build(testSnapshot(), "")
	assert.ErrorIs(t, err, ErrPromptTooLarge)
}

func TestBuildDesktopBatteryLine(t *testing.T) {
	snap := testSnapshot()
	snap.BatteryPercent = nil

	b := NewBuilder(8192, 10)
	out, err := b.Build(snap, "")
	require.NoError(t, err)
	assert.Contains(t, out, "Battery: none")
}
