// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sensors

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/distatus/battery"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/AleutianAI/steward/pkg/logging"
)

// Provider yields a system snapshot once per cycle.
type Provider interface {
	// Snapshot returns the current resource state. Partial sensor
	// failure is tolerated: affected fields carry their sentinel and
	// the snapshot is still usable. The only error is a cancelled
	// context.
	Snapshot(ctx context.Context) (SystemSnapshot, error)
}

// Collector reads sensors through gopsutil and distatus/battery.
//
// # Caching
//
// Snapshots are cached for a short TTL so rapid interactive commands
// don't re-poll sensors (CPU sampling alone costs half a second).
//
// # Thread Safety
//
// Collector is safe for concurrent use.
type Collector struct {
	logger   *logging.Logger
	cacheTTL time.Duration
	diskPath string

	mu       sync.Mutex
	cached   SystemSnapshot
	cachedAt time.Time

	// Sensor functions, swappable in tests.
	cpuPercent    func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)
	virtualMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	diskUsage     func(ctx context.Context, path string) (*disk.UsageStat, error)
	batteries     func() ([]*battery.Battery, error)
	processes     func(ctx context.Context) ([]*process.Process, error)
}

// NewCollector creates a Collector with a 5 second snapshot cache.
func NewCollector(logger *logging.Logger) *Collector {
	diskPath := "/"
	if runtime.GOOS == "windows" {
		diskPath = `C:\`
	}
	return &Collector{
		logger:        logger,
		cacheTTL:      5 * time.Second,
		diskPath:      diskPath,
		cpuPercent:    cpu.PercentWithContext,
		virtualMemory: mem.VirtualMemoryWithContext,
		diskUsage:     disk.UsageWithContext,
		batteries:     battery.GetAll,
		processes:     process.ProcessesWithContext,
	}
}

// Snapshot implements Provider.
func (c *Collector) Snapshot(ctx context.Context) (SystemSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cachedAt.IsZero() && time.Since(c.cachedAt) < c.cacheTTL {
		return c.cached, nil
	}
	if err := ctx.Err(); err != nil {
		return SystemSnapshot{}, err
	}

	snap := SystemSnapshot{Timestamp: time.Now().UTC()}

	if pcts, err := c.cpuPercent(ctx, 500*time.Millisecond, false); err != nil {
		c.logger.Warn("cpu sensor unavailable", "error", err)
	} else if len(pcts) > 0 {
		snap.CPUPercent = clampPercent(pcts[0])
	}

	if vm, err := c.virtualMemory(ctx); err != nil {
		c.logger.Warn("memory sensor unavailable", "error", err)
	} else {
		snap.MemoryPercent = clampPercent(vm.UsedPercent)
	}

	if usage, err := c.diskUsage(ctx, c.diskPath); err != nil {
		c.logger.Warn("disk sensor unavailable", "path", c.diskPath, "error", err)
	} else {
		snap.DiskPercent = clampPercent(usage.UsedPercent)
	}

	c.readBattery(&snap)
	snap.TopProcesses = c.readProcesses(ctx)

	if err := ctx.Err(); err != nil {
		return SystemSnapshot{}, err
	}

	c.cached = snap
	c.cachedAt = time.Now()
	return snap, nil
}

// readBattery fills the battery fields. No battery at all is the
// desktop case: percent stays nil and charging defaults to true so
// downstream "low battery and not charging" logic never fires.
func (c *Collector) readBattery(snap *SystemSnapshot) {
	snap.BatteryCharging = true

	bats, err := c.batteries()
	if err != nil || len(bats) == 0 {
		return
	}
	b := bats[0]
	if b.Full <= 0 {
		return
	}
	pct := clampPercent(b.Current / b.Full * 100)
	snap.BatteryPercent = &pct
	snap.BatteryCharging = b.State.Raw == battery.Charging || b.State.Raw == battery.Full
}

// readProcesses collects per-process stats, skipping processes that
// vanish or deny access mid-scan.
func (c *Collector) readProcesses(ctx context.Context) []ProcessInfo {
	procs, err := c.processes(ctx)
	if err != nil {
		c.logger.Warn("process listing unavailable", "error", err)
		return nil
	}

	infos := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		info := ProcessInfo{PID: p.Pid, Name: name}
		if cpuPct, err := p.CPUPercentWithContext(ctx); err == nil {
			info.CPUPercent = cpuPct
		}
		if memInfo, err := p.MemoryInfoWithContext(ctx); err == nil && memInfo != nil {
			info.MemoryBytes = memInfo.RSS
		}
		infos = append(infos, info)
	}
	return infos
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
