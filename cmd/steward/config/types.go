// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"time"
)

// StewardConfig is the full on-disk configuration, stored as YAML at
// ~/.steward/steward.yaml. Missing file is not an error: defaults are
// written out on first run.
type StewardConfig struct {
	// LLMModel is the model the backend should run, e.g. "llama3.2:1b".
	LLMModel string `yaml:"llm_model" validate:"required"`

	// APIBase is the backend base URL, e.g. "http://localhost:11434".
	APIBase string `yaml:"api_base" validate:"required,url"`

	// Backend selects the inference transport: "ollama" or "openai"
	// (any OpenAI-compatible server).
	Backend string `yaml:"backend" validate:"oneof=ollama openai"`

	// SystemCheckInterval is the background tick period in seconds.
	SystemCheckInterval int `yaml:"system_check_interval" validate:"min=5,max=86400"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	Prompt    PromptConfig    `yaml:"prompt"`
	Inference InferenceConfig `yaml:"inference"`
	Breaker   BreakerConfig   `yaml:"circuit_breaker"`
	Policy    PolicyConfig    `yaml:"policy"`
	Server    ServerConfig    `yaml:"status_server"`
	Audit     AuditConfig     `yaml:"audit"`
}

// PromptConfig bounds the prompt the builder may produce.
type PromptConfig struct {
	// MaxBytes is the hard budget for a rendered prompt.
	MaxBytes int `yaml:"max_bytes" validate:"min=512"`

	// MaxProcesses caps how many top processes the prompt lists.
	MaxProcesses int `yaml:"max_processes" validate:"min=1,max=50"`
}

// InferenceConfig controls the gateway's timeout and retry behavior.
type InferenceConfig struct {
	// TimeoutSeconds is the hard per-call timeout.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"min=1,max=600"`

	// MaxRetries applies to transient (connection) failures only.
	MaxRetries int `yaml:"max_retries" validate:"min=0,max=5"`

	// MaxResponseBytes protects the parser from runaway output.
	MaxResponseBytes int `yaml:"max_response_bytes" validate:"min=1024"`
}

// BreakerConfig controls when repeated backend failures suspend the loop.
type BreakerConfig struct {
	// FailureThreshold is consecutive unreachable results before the
	// circuit opens.
	FailureThreshold int `yaml:"failure_threshold" validate:"min=1,max=20"`

	// CooldownSeconds is how long the circuit stays open before the
	// loop retries the backend.
	CooldownSeconds int `yaml:"cooldown_seconds" validate:"min=1,max=3600"`
}

// PolicyConfig is the safety policy for executable actions.
// In watch mode it is hot-reloaded when the config file changes.
type PolicyConfig struct {
	// ProtectedProcesses are never terminated, matched by name
	// (case-insensitive).
	ProtectedProcesses []string `yaml:"protected_processes"`

	// AllowedPowerPlans are the only accepted SetPowerPlan targets.
	AllowedPowerPlans []string `yaml:"allowed_power_plans"`
}

// ServerConfig controls the local status endpoint exposed in watch mode.
type ServerConfig struct {
	// Enabled turns the HTTP status server on.
	Enabled bool `yaml:"enabled"`

	// Addr is the listen address. Loopback by default; this server is
	// not meant to be reachable off-host.
	Addr string `yaml:"addr"`
}

// AuditConfig controls persistence of cycle records.
type AuditConfig struct {
	// Dir is the Badger store location. Empty disables persistence
	// (records are still held in memory for the session).
	Dir string `yaml:"dir"`

	// MemoryLimit caps how many records the in-memory log retains.
	MemoryLimit int `yaml:"memory_limit" validate:"min=1"`
}

// Timeout returns TimeoutSeconds as a duration.
func (c InferenceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Cooldown returns CooldownSeconds as a duration.
func (c BreakerConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// CheckInterval returns SystemCheckInterval as a duration.
func (c StewardConfig) CheckInterval() time.Duration {
	return time.Duration(c.SystemCheckInterval) * time.Second
}

// DefaultConfig returns the configuration written on first run.
//
// The protected-process list covers the obvious session-killers on the
// platforms we run on; users extend it in steward.yaml.
func DefaultConfig() StewardConfig {
	return StewardConfig{
		LLMModel:            "llama3.2:1b",
		APIBase:             "http://localhost:11434",
		Backend:             "ollama",
		SystemCheckInterval: 60,
		LogLevel:            "info",
		Prompt: PromptConfig{
			MaxBytes:     8192,
			MaxProcesses: 10,
		},
		Inference: InferenceConfig{
			TimeoutSeconds:   120,
			MaxRetries:       2,
			MaxResponseBytes: 65536,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 3,
			CooldownSeconds:  120,
		},
		Policy: PolicyConfig{
			ProtectedProcesses: []string{
				// Windows
				"winlogon.exe", "csrss.exe", "lsass.exe", "smss.exe",
				"services.exe", "wininit.exe", "explorer.exe", "system",
				// Linux / macOS
				"systemd", "init", "launchd", "kernel_task",
				"windowserver", "loginwindow", "dbus-daemon",
				// Don't let the agent shoot itself
				"steward",
			},
			AllowedPowerPlans: []string{
				"balanced", "high_performance", "power_saver",
			},
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    "127.0.0.1:7639",
		},
		Audit: AuditConfig{
			Dir:         "~/.steward/audit",
			MemoryLimit: 256,
		},
	}
}
