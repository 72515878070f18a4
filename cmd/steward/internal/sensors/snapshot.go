// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sensors collects point-in-time system resource snapshots.
package sensors

import (
	"sort"
	"time"
)

// ProcessInfo describes one running process inside a snapshot.
type ProcessInfo struct {
	PID         int32   `json:"pid"`
	Name        string  `json:"name"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryBytes uint64  `json:"memory_bytes"`
}

// SystemSnapshot is an immutable record of the machine's resource state
// at one instant. It is produced once per cycle and never mutated; the
// next cycle supersedes it with a fresh one.
//
// BatteryPercent is nil on machines without a battery (desktops); all
// other fields default to zero when the underlying sensor is
// unavailable rather than failing the snapshot.
type SystemSnapshot struct {
	Timestamp       time.Time     `json:"timestamp"`
	CPUPercent      float64       `json:"cpu_percent"`
	MemoryPercent   float64       `json:"memory_percent"`
	DiskPercent     float64       `json:"disk_percent"`
	BatteryPercent  *float64      `json:"battery_percent,omitempty"`
	BatteryCharging bool          `json:"battery_charging"`
	TopProcesses    []ProcessInfo `json:"top_processes"`
}

// OnBattery reports whether the machine is draining a battery.
// Desktops (no battery) are never "on battery".
func (s SystemSnapshot) OnBattery() bool {
	return s.BatteryPercent != nil && !s.BatteryCharging
}

// TopByMemory returns up to n processes ordered by descending memory
// use. The receiver's slice is not modified.
func (s SystemSnapshot) TopByMemory(n int) []ProcessInfo {
	procs := make([]ProcessInfo, len(s.TopProcesses))
	copy(procs, s.TopProcesses)
	sort.SliceStable(procs, func(i, j int) bool {
		return procs[i].MemoryBytes > procs[j].MemoryBytes
	})
	if n > 0 && len(procs) > n {
		procs = procs[:n]
	}
	return procs
}

// Thresholds are the trip points the background loop uses to decide
// whether a snapshot warrants consulting the model at all.
type Thresholds struct {
	CPUPercent     float64
	MemoryPercent  float64
	DiskPercent    float64
	BatteryPercent float64
}

// DefaultThresholds mirrors the long-standing defaults: cpu/mem 80%,
// disk 90%, battery low under 20%.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUPercent:     80,
		MemoryPercent:  80,
		DiskPercent:    90,
		BatteryPercent: 20,
	}
}

// Exceeded reports whether any threshold is crossed, and a short list
// of human-readable condition names for logging and prompts.
func (t Thresholds) Exceeded(s SystemSnapshot) (bool, []string) {
	var conditions []string
	if s.CPUPercent > t.CPUPercent {
		conditions = append(conditions, "high_cpu")
	}
	if s.MemoryPercent > t.MemoryPercent {
		conditions = append(conditions, "high_memory")
	}
	if s.DiskPercent > t.DiskPercent {
		conditions = append(conditions, "high_disk")
	}
	if s.BatteryPercent != nil && *s.BatteryPercent < t.BatteryPercent && !s.BatteryCharging {
		conditions = append(conditions, "low_battery")
	}
	return len(conditions) > 0, conditions
}
