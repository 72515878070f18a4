// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/steward/cmd/steward/config"
	"github.com/AleutianAI/steward/pkg/ux"
)

// runStatus queries the status endpoint of a running watch loop.
func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		ux.Error(err.Error())
		return err
	}
	if !cfg.Server.Enabled {
		ux.Warning("The status server is disabled in the config; nothing to query.")
		return nil
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + cfg.Server.Addr + "/status")
	if err != nil {
		ux.Warning("Steward is not running (no listener at " + cfg.Server.Addr + ").")
		return nil
	}
	defer resp.Body.Close()

	var body struct {
		Backend             string    `json:"backend"`
		CircuitState        string    `json:"circuit_state"`
		ConsecutiveFailures int       `json:"consecutive_failures"`
		LastSuccess         time.Time `json:"last_success"`
		LastCycle           time.Time `json:"last_cycle"`
		CyclesRun           uint64    `json:"cycles_run"`
		CheckInterval       string    `json:"check_interval"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		ux.Error("Unexpected response from the status server: " + err.Error())
		return err
	}

	ux.Title("Steward status")
	ux.KeyValue("Backend", body.Backend)
	ux.KeyValue("Circuit", body.CircuitState)
	ux.KeyValue("Interval", body.CheckInterval)
	ux.KeyValue("Cycles run", fmt.Sprintf("%d", body.CyclesRun))
	ux.KeyValue("Consecutive failures", fmt.Sprintf("%d", body.ConsecutiveFailures))
	if !body.LastCycle.IsZero() {
		ux.KeyValue("Last cycle", body.LastCycle.Local().Format(time.RFC1123))
	}
	if !body.LastSuccess.IsZero() {
		ux.KeyValue("Last success", body.LastSuccess.Local().Format(time.RFC1123))
	}

	if body.CircuitState == "OPEN" {
		ux.Warning("The inference backend has been failing; cycles are suspended until it recovers.")
	} else {
		ux.Success("Healthy")
	}
	return nil
}
