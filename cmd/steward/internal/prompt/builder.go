// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package prompt renders system snapshots into bounded LLM prompts.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/steward/cmd/steward/internal/intent"
	"github.com/AleutianAI/steward/cmd/steward/internal/sensors"
)

// ErrPromptTooLarge means truncation could not bring the prompt under
// the configured byte budget.
var ErrPromptTooLarge = errors.New("prompt exceeds byte budget after truncation")

// Builder renders prompts. Build is a pure function of its inputs and
// the Builder's configuration: same snapshot and request, same prompt.
type Builder struct {
	// MaxBytes is the hard budget for the rendered prompt.
	MaxBytes int

	// MaxProcesses caps the process listing before truncation starts.
	MaxProcesses int

	// Thresholds derive the "system state" sentences.
	Thresholds sensors.Thresholds
}

// NewBuilder returns a Builder with the given bounds and default
// thresholds.
func NewBuilder(maxBytes, maxProcesses int) *Builder {
	return &Builder{
		MaxBytes:     maxBytes,
		MaxProcesses: maxProcesses,
		Thresholds:   sensors.DefaultThresholds(),
	}
}

// Build renders the prompt for one cycle. userRequest is empty in
// background mode. The process listing is truncated (top consumers by
// memory first) until the prompt fits MaxBytes; if even an empty
// listing does not fit, Build fails with ErrPromptTooLarge.
func (b *Builder) Build(snap sensors.SystemSnapshot, userRequest string) (string, error) {
	for count := min(b.MaxProcesses, len(snap.TopProcesses)); ; count-- {
		rendered := b.render(snap, userRequest, count)
		if len(rendered) <= b.MaxBytes {
			return rendered, nil
		}
		if count <= 0 {
			return "", fmt.Errorf("%w: %d bytes over a %d byte budget",
				ErrPromptTooLarge, len(rendered), b.MaxBytes)
		}
	}
}

func (b *Builder) render(snap sensors.SystemSnapshot, userRequest string, processCount int) string {
	var sb strings.Builder

	sb.WriteString("You are an assistant managing this machine's resources.\n\n")

	fmt.Fprintf(&sb, "Current system state (%s):\n", snap.Timestamp.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&sb, "  CPU usage: %.1f%%\n", snap.CPUPercent)
	fmt.Fprintf(&sb, "  Memory usage: %.1f%%\n", snap.MemoryPercent)
	fmt.Fprintf(&sb, "  Disk usage: %.1f%%\n", snap.DiskPercent)
	if snap.BatteryPercent != nil {
		state := "discharging"
		if snap.BatteryCharging {
			state = "charging"
		}
		fmt.Fprintf(&sb, "  Battery: %.0f%% (%s)\n", *snap.BatteryPercent, state)
	} else {
		sb.WriteString("  Battery: none (desktop or unavailable)\n")
	}

	if sentences := b.stateSentences(snap); len(sentences) > 0 {
		fmt.Fprintf(&sb, "Notable: %s.\n", strings.Join(sentences, ", "))
	}

	if top := snap.TopByMemory(processCount); len(top) > 0 {
		sb.WriteString("\nTop processes by memory:\n")
		for _, proc := range top {
			fmt.Fprintf(&sb, "  pid=%d name=%s cpu=%.1f%% memory_bytes=%d\n",
				proc.PID, proc.Name, proc.CPUPercent, proc.MemoryBytes)
		}
	}

	if userRequest != "" {
		fmt.Fprintf(&sb, "\nUser request: %s\n", userRequest)
	} else {
		sb.WriteString("\nNo user request; this is a periodic background check. " +
			"Suggest an action only if the system state warrants one.\n")
	}

	sb.WriteString("\n")
	sb.WriteString(intent.GrammarInstructions)
	sb.WriteString("\n")

	return sb.String()
}

// stateSentences derives the plain-language condition summary the
// model reasons over, mirroring the threshold gate.
func (b *Builder) stateSentences(snap sensors.SystemSnapshot) []string {
	var sentences []string
	if snap.CPUPercent > b.Thresholds.CPUPercent {
		sentences = append(sentences, "CPU usage is high")
	}
	if snap.MemoryPercent > b.Thresholds.MemoryPercent {
		sentences = append(sentences, "memory usage is high")
	}
	if snap.DiskPercent > b.Thresholds.DiskPercent {
		sentences = append(sentences, "disk usage is high")
	}
	if snap.BatteryPercent != nil && *snap.BatteryPercent < b.Thresholds.BatteryPercent {
		if snap.BatteryCharging {
			sentences = append(sentences, "battery is low but charging")
		} else {
			sentences = append(sentences, "battery is low and not charging")
		}
	}
	return sentences
}
