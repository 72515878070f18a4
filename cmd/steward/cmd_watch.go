// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/steward/cmd/steward/config"
	"github.com/AleutianAI/steward/cmd/steward/internal/statusserver"
	"github.com/AleutianAI/steward/pkg/ux"
)

// runWatch runs the background loop until SIGINT or SIGTERM. While it
// runs it serves the status endpoint and hot-reloads the policy when
// the config file changes.
func runWatch(cmd *cobra.Command, args []string) error {
	app, err := newApp(configPath)
	if err != nil {
		ux.Error(err.Error())
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing model gets a pull hint here; an unreachable backend is
	// worth starting anyway, the breaker will gate cycles until it is up.
	if err := app.gateway.Verify(ctx); err != nil {
		app.logger.Warn("backend verification failed at startup", "error", err.Error())
		ux.Warning("Backend not reachable yet; the loop will keep trying.")
	}

	var server *statusserver.Server
	if app.cfg.Server.Enabled {
		server = statusserver.New(app.cfg.Server.Addr, app.controller.State, app.store, app.logger)
		go func() {
			if err := server.Start(); err != nil {
				app.logger.Error("status server failed", "error", err.Error())
			}
		}()
	}

	stopWatching, err := watchConfig(ctx, app)
	if err != nil {
		app.logger.Warn("config watching disabled", "error", err.Error())
	} else {
		defer stopWatching()
	}

	ux.Title("Steward is watching this machine")
	ux.KeyValue("Backend", app.gateway.BackendName())
	ux.KeyValue("Model", app.cfg.LLMModel)
	ux.KeyValue("Interval", app.cfg.CheckInterval().String())
	if app.cfg.Server.Enabled {
		ux.KeyValue("Status", "http://"+app.cfg.Server.Addr+"/status")
	}

	err = app.controller.Run(ctx)

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := server.Shutdown(shutdownCtx); serr != nil {
			app.logger.Error("status server shutdown failed", "error", serr.Error())
		}
	}

	if errors.Is(err, context.Canceled) {
		ux.Info("Stopped.")
		return nil
	}
	return err
}

// watchConfig reloads the policy whenever the config file is written.
func watchConfig(ctx context.Context, app *app) (func(), error) {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, err
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors replace the file on save, which
	// drops a watch held on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				app.logger.Info("config file changed, reloading policy")
				if err := app.reloadPolicy(path); err != nil {
					app.logger.Error("policy reload failed, keeping the previous policy",
						"error", err.Error())
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				app.logger.Warn("config watcher error", "error", err.Error())
			}
		}
	}()

	return func() { watcher.Close() }, nil
}
