// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/steward/cmd/steward/internal/audit"
	"github.com/AleutianAI/steward/pkg/ux"
)

// runAsk executes one interactive decision cycle and renders its
// outcome. The audit record is written whether or not the cycle
// succeeded.
func runAsk(cmd *cobra.Command, args []string) error {
	request := strings.Join(args, " ")

	app, err := newApp(configPath)
	if err != nil {
		ux.Error(err.Error())
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.gateway.Verify(ctx); err != nil {
		ux.Error("The inference backend is not reachable: " + err.Error())
		return err
	}

	ux.Info("Thinking...")
	rec, err := app.controller.RunOnce(ctx, request)
	if err != nil {
		ux.Error(err.Error())
		return err
	}

	renderRecord(rec)
	return nil
}

// renderRecord prints one cycle's outcome for a human.
func renderRecord(rec audit.CycleRecord) {
	switch {
	case !rec.Allowed:
		ux.Warning(rec.Message)
	case rec.Succeeded:
		ux.Success(rec.Message)
	default:
		ux.Error(rec.Message)
	}
	if rec.IntentKind != "" {
		ux.KeyValue("Action", rec.IntentText)
	}
	ux.Muted("Recorded as " + rec.ID)
}
