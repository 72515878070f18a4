// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/steward/cmd/steward/config"
	"github.com/AleutianAI/steward/cmd/steward/internal/audit"
	"github.com/AleutianAI/steward/pkg/logging"
	"github.com/AleutianAI/steward/pkg/ux"
)

// runAudit prints recent cycle records from the persistent store.
func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		ux.Error(err.Error())
		return err
	}
	if cfg.Audit.Dir == "" {
		err := errors.New("audit persistence is disabled (audit.dir is empty)")
		ux.Warning(err.Error())
		return err
	}

	store, err := audit.Open(audit.Config{
		Dir:         config.ExpandPath(cfg.Audit.Dir),
		MemoryLimit: cfg.Audit.MemoryLimit,
		Logger:      logging.Discard(),
	})
	if err != nil {
		ux.Error("Could not open the audit store (is a watch loop holding it?): " + err.Error())
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	records, err := store.Recent(ctx, auditLimit)
	if err != nil {
		ux.Error(err.Error())
		return err
	}
	if len(records) == 0 {
		ux.Info("No recorded cycles yet.")
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	ux.Title(fmt.Sprintf("Last %d decision cycles", len(records)))
	for _, rec := range records {
		printRecord(rec)
	}
	return nil
}

func printRecord(rec audit.CycleRecord) {
	when := rec.Timestamp.Local().Format("2006-01-02 15:04:05")
	header := fmt.Sprintf("%s  [%s]", when, rec.Trigger)
	ux.Muted(header)

	if rec.UserRequest != "" {
		ux.KeyValue("  Request", rec.UserRequest)
	}
	if rec.IntentText != "" {
		ux.KeyValue("  Action", rec.IntentText)
	}
	if rec.ParseError != "" {
		ux.KeyValue("  Rejected", rec.ParseError)
	}

	switch {
	case rec.ParseError != "":
		ux.Error("  " + rec.Message)
	case !rec.Allowed:
		ux.Warning("  " + rec.Message)
	case rec.Succeeded:
		ux.Success("  " + rec.Message)
	default:
		ux.Error("  " + rec.Message)
	}
}
