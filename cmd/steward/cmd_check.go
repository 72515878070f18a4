// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/steward/cmd/steward/internal/sensors"
	"github.com/AleutianAI/steward/pkg/ux"
)

// runCheck verifies the pieces a cycle depends on: sensors and the
// inference backend. It exits non-zero if either is unusable.
func runCheck(cmd *cobra.Command, args []string) error {
	app, err := newApp(configPath)
	if err != nil {
		ux.Error(err.Error())
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ux.Title("Steward preflight check")

	collector := sensors.NewCollector(app.logger)
	snap, err := collector.Snapshot(ctx)
	if err != nil {
		ux.Error("Sensors: " + err.Error())
		return err
	}
	ux.Success("Sensors readable")
	ux.KeyValue("CPU", fmt.Sprintf("%.1f%%", snap.CPUPercent))
	ux.KeyValue("Memory", fmt.Sprintf("%.1f%%", snap.MemoryPercent))
	ux.KeyValue("Disk", fmt.Sprintf("%.1f%%", snap.DiskPercent))
	if snap.BatteryPercent != nil {
		ux.KeyValue("Battery", fmt.Sprintf("%.0f%%", *snap.BatteryPercent))
	} else {
		ux.KeyValue("Battery", "none")
	}
	ux.KeyValue("Processes", fmt.Sprintf("%d sampled", len(snap.TopProcesses)))

	if err := app.gateway.Verify(ctx); err != nil {
		ux.Error("Backend: " + err.Error())
		return err
	}
	ux.Success("Backend reachable (" + app.gateway.BackendName() + ", model " + app.cfg.LLMModel + ")")

	if exceeded, conditions := sensors.DefaultThresholds().Exceeded(snap); exceeded {
		ux.Warning("Attention conditions present: " + fmt.Sprint(conditions))
	} else {
		ux.Info("System is within normal thresholds")
	}
	return nil
}
