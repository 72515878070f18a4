// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath string
	auditLimit int
	jsonOutput bool

	rootCmd = &cobra.Command{
		Use:   "steward",
		Short: "A local LLM-driven caretaker for this machine",
		Long: `Steward watches this machine's resources and asks a local language
model what, if anything, should be done about them. Every suggested
action is validated against local policy before it touches the system,
and every decision cycle is recorded in an audit log.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	askCmd = &cobra.Command{
		Use:   "ask [request]",
		Short: "Run one decision cycle for a natural-language request",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk, // Defined in cmd_ask.go
	}

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Monitor the machine continuously and act when thresholds are exceeded",
		RunE:  runWatch, // Defined in cmd_watch.go
	}

	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Verify sensors and the inference backend, then exit",
		RunE:  runCheck, // Defined in cmd_check.go
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running watch loop",
		RunE:  runStatus, // Defined in cmd_status.go
	}

	auditCmd = &cobra.Command{
		Use:   "audit",
		Short: "Show recent decision cycles from the audit log",
		RunE:  runAudit, // Defined in cmd_audit.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to steward.yaml (default ~/.steward/steward.yaml)")

	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "number of records to show")
	auditCmd.Flags().BoolVar(&jsonOutput, "json", false, "emit records as JSON")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(auditCmd)
}
