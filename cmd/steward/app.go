// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/AleutianAI/steward/cmd/steward/config"
	"github.com/AleutianAI/steward/cmd/steward/internal/action"
	"github.com/AleutianAI/steward/cmd/steward/internal/audit"
	"github.com/AleutianAI/steward/cmd/steward/internal/inference"
	"github.com/AleutianAI/steward/cmd/steward/internal/intent"
	"github.com/AleutianAI/steward/cmd/steward/internal/loop"
	"github.com/AleutianAI/steward/cmd/steward/internal/prompt"
	"github.com/AleutianAI/steward/cmd/steward/internal/sensors"
	"github.com/AleutianAI/steward/pkg/logging"
)

// app wires configuration into a ready decision loop. Only commands
// that run cycles (ask, watch) build one; the cheap commands load what
// they need directly.
type app struct {
	cfg        config.StewardConfig
	logger     *logging.Logger
	gateway    *inference.Gateway
	store      *audit.Store
	runner     action.CommandRunner
	controller *loop.Controller
}

// newApp loads configuration and assembles the loop.
func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		Service: "steward",
	})

	backend, err := buildBackend(cfg, logger)
	if err != nil {
		logger.Close()
		return nil, err
	}
	gateway := inference.NewGateway(backend, cfg.Inference.Timeout(), cfg.Inference.MaxRetries, logger)

	storeCfg := audit.Config{
		MemoryLimit: cfg.Audit.MemoryLimit,
		Logger:      logger,
	}
	if cfg.Audit.Dir == "" {
		storeCfg.InMemory = true
	} else {
		storeCfg.Dir = config.ExpandPath(cfg.Audit.Dir)
	}
	store, err := audit.Open(storeCfg)
	if err != nil {
		logger.Close()
		return nil, err
	}

	runner := action.NewExecRunner()
	executor := action.NewExecutor(action.NewPolicy(cfg.Policy), runner, logger)

	controller := loop.NewController(loop.Options{
		Provider: sensors.NewCollector(logger),
		Builder:  prompt.NewBuilder(cfg.Prompt.MaxBytes, cfg.Prompt.MaxProcesses),
		Inferer:  gateway,
		Parser:   intent.NewParser(logger),
		Executor: executor,
		Store:    store,
		Breaker: loop.NewCircuitBreaker(loop.BreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			Cooldown:         cfg.Breaker.Cooldown(),
			OnStateChange: func(from, to loop.CircuitState) {
				logger.Warn("inference circuit state changed",
					"from", from.String(), "to", to.String())
			},
		}),
		Thresholds: sensors.DefaultThresholds(),
		Interval:   cfg.CheckInterval(),
		Logger:     logger,
	})

	return &app{
		cfg:        cfg,
		logger:     logger,
		gateway:    gateway,
		store:      store,
		runner:     runner,
		controller: controller,
	}, nil
}

// reloadPolicy re-reads the config file and swaps the executor's
// policy. Other settings need a restart; policy alone hot-reloads so
// protecting a process never waits on one.
func (a *app) reloadPolicy(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a.controller.SetExecutor(action.NewExecutor(action.NewPolicy(cfg.Policy), a.runner, a.logger))
	return nil
}

// Close releases the audit store and log file.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close the audit store", "error", err.Error())
	}
	a.logger.Close()
}

// buildBackend constructs the configured inference transport.
func buildBackend(cfg config.StewardConfig, logger *logging.Logger) (inference.Backend, error) {
	maxBytes := int64(cfg.Inference.MaxResponseBytes)
	switch cfg.Backend {
	case "ollama":
		return inference.NewOllamaBackend(cfg.APIBase, cfg.LLMModel, maxBytes, logger), nil
	case "openai":
		return inference.NewOpenAIBackend(cfg.APIBase, cfg.LLMModel, maxBytes, logger), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
