// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package loop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/steward/cmd/steward/internal/action"
	"github.com/AleutianAI/steward/cmd/steward/internal/audit"
	"github.com/AleutianAI/steward/cmd/steward/internal/inference"
	"github.com/AleutianAI/steward/cmd/steward/internal/intent"
	"github.com/AleutianAI/steward/cmd/steward/internal/metrics"
	"github.com/AleutianAI/steward/cmd/steward/internal/prompt"
	"github.com/AleutianAI/steward/cmd/steward/internal/sensors"
	"github.com/AleutianAI/steward/pkg/logging"
)

// Inferer is the slice of the inference gateway the loop needs.
type Inferer interface {
	Infer(ctx context.Context, prompt string) (string, error)
	BackendName() string
}

// Executor carries a validated intent out on the host.
type Executor interface {
	Execute(ctx context.Context, in intent.Intent, snap sensors.SystemSnapshot) action.Outcome
}

// Recorder persists cycle records.
type Recorder interface {
	Append(ctx context.Context, rec audit.CycleRecord) error
}

// State is a point-in-time view of loop health for status reporting.
type State struct {
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastSuccess         time.Time     `json:"last_success,omitempty"`
	LastCycle           time.Time     `json:"last_cycle,omitempty"`
	CircuitState        string        `json:"circuit_state"`
	Backend             string        `json:"backend"`
	CyclesRun           uint64        `json:"cycles_run"`
	Interval            time.Duration `json:"-"`
}

// Controller owns the decision cycle. At most one cycle runs at a
// time; overlapping triggers wait.
type Controller struct {
	provider sensors.Provider
	builder  *prompt.Builder
	inferer  Inferer
	parser   *intent.Parser
	breaker  *CircuitBreaker
	logger   *logging.Logger

	thresholds sensors.Thresholds
	interval   time.Duration

	mu       sync.Mutex // serializes cycles
	executor Executor
	store    Recorder

	stateMu  sync.Mutex
	failures int
	lastOK   time.Time
	lastRun  time.Time
	cycles   uint64
}

// Options bundles the controller's collaborators.
type Options struct {
	Provider   sensors.Provider
	Builder    *prompt.Builder
	Inferer    Inferer
	Parser     *intent.Parser
	Executor   Executor
	Store      Recorder
	Breaker    *CircuitBreaker
	Thresholds sensors.Thresholds
	Interval   time.Duration
	Logger     *logging.Logger
}

// NewController wires the loop together.
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	breaker := opts.Breaker
	if breaker == nil {
		breaker = NewCircuitBreaker(BreakerConfig{})
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	return &Controller{
		provider:   opts.Provider,
		builder:    opts.Builder,
		inferer:    opts.Inferer,
		parser:     opts.Parser,
		executor:   opts.Executor,
		store:      opts.Store,
		breaker:    breaker,
		thresholds: opts.Thresholds,
		interval:   opts.Interval,
		logger:     logger,
	}
}

// SetExecutor swaps the executor, used when policy is reloaded.
func (c *Controller) SetExecutor(ex Executor) {
	c.mu.Lock()
	c.executor = ex
	c.mu.Unlock()
	c.logger.Info("executor policy updated")
}

// State reports current loop health.
func (c *Controller) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return State{
		ConsecutiveFailures: c.failures,
		LastSuccess:         c.lastOK,
		LastCycle:           c.lastRun,
		CircuitState:        c.breaker.State().String(),
		Backend:             c.inferer.BackendName(),
		CyclesRun:           c.cycles,
		Interval:            c.interval,
	}
}

// RunOnce executes one interactive cycle for the given user request
// and returns its audit record.
func (c *Controller) RunOnce(ctx context.Context, userRequest string) (audit.CycleRecord, error) {
	return c.cycle(ctx, audit.TriggerInteractive, userRequest)
}

// Run drives background cycles until the context is cancelled. Each
// tick takes a snapshot and consults the thresholds; inference only
// runs when the machine needs attention.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("background loop started",
		"interval", c.interval.String(),
		"backend", c.inferer.BackendName(),
	)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("background loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := c.cycle(ctx, audit.TriggerBackground, ""); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				// Cycle errors are recorded and counted; the loop keeps going.
			}
		}
	}
}

// errSkipped marks a background tick that needed no inference.
var errSkipped = errors.New("cycle skipped")

func (c *Controller) cycle(ctx context.Context, trigger audit.Trigger, userRequest string) (audit.CycleRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	rec, err := c.runCycle(ctx, trigger, userRequest)
	elapsed := time.Since(start)

	if errors.Is(err, errSkipped) {
		metrics.ObserveCycle(string(trigger), "skipped", elapsed)
		return rec, nil
	}

	result := "success"
	switch {
	case err != nil:
		result = "failure"
	case !rec.Allowed:
		// A denial is policy working as intended, not a loop failure.
		result = "denied"
	case !rec.Succeeded:
		result = "failure"
	}
	metrics.ObserveCycle(string(trigger), result, elapsed)

	c.stateMu.Lock()
	c.cycles++
	c.lastRun = time.Now().UTC()
	if result == "failure" {
		c.failures++
	} else {
		c.failures = 0
		c.lastOK = c.lastRun
	}
	c.stateMu.Unlock()

	if c.store != nil {
		if aerr := c.store.Append(context.WithoutCancel(ctx), rec); aerr != nil {
			c.logger.Error("failed to write audit record", "error", aerr.Error(), "id", rec.ID)
		}
	}
	return rec, err
}

// runCycle performs the snapshot-to-outcome pipeline for one cycle.
func (c *Controller) runCycle(ctx context.Context, trigger audit.Trigger, userRequest string) (audit.CycleRecord, error) {
	rec := audit.NewCycleRecord(trigger).WithRequest(userRequest)

	snap, err := c.provider.Snapshot(ctx)
	if err != nil {
		rec.Message = "snapshot failed: " + err.Error()
		return rec, fmt.Errorf("snapshot: %w", err)
	}
	rec = rec.WithSnapshot(snap)

	if trigger == audit.TriggerBackground {
		exceeded, conditions := c.thresholds.Exceeded(snap)
		if !exceeded {
			c.logger.Debug("system healthy, skipping inference")
			return rec, errSkipped
		}
		c.logger.Info("thresholds exceeded", "conditions", strings.Join(conditions, ","))
	}

	if !c.breaker.Allow() {
		rec.Message = ErrCircuitOpen.Error()
		c.logger.Warn("cycle rejected, inference circuit is open")
		return rec, ErrCircuitOpen
	}
	c.publishCircuitState()

	promptText, err := c.builder.Build(snap, userRequest)
	if err != nil {
		rec.Message = "prompt build failed: " + err.Error()
		return rec, fmt.Errorf("prompt: %w", err)
	}

	raw, err := c.inferer.Infer(ctx, promptText)
	if err != nil {
		var ierr *inference.Error
		if errors.As(err, &ierr) {
			metrics.ObserveInferenceFailure(ierr.Kind.String())
			if ierr.Retryable() {
				c.breaker.RecordFailure()
			}
		}
		c.publishCircuitState()
		rec.Message = "inference failed: " + err.Error()
		return rec, fmt.Errorf("inference: %w", err)
	}
	c.breaker.RecordSuccess()
	c.publishCircuitState()
	rec = rec.WithModelText(raw)

	parsed, err := c.parser.Parse(raw)
	if err != nil {
		metrics.ObserveParseFailure()
		rec.ParseError = err.Error()
		rec.Message = "response rejected: " + err.Error()
		return rec, fmt.Errorf("parse: %w", err)
	}
	rec.IntentKind = string(parsed.Kind())
	rec.IntentText = parsed.String()

	outcome := c.executor.Execute(ctx, parsed, snap)
	metrics.ObserveAction(string(parsed.Kind()), outcome.Allowed)

	rec.Allowed = outcome.Allowed
	rec.Succeeded = outcome.Succeeded
	rec.Message = outcome.Message
	rec.ExecutedAt = outcome.ExecutedAt
	return rec, nil
}

func (c *Controller) publishCircuitState() {
	var v float64
	switch c.breaker.State() {
	case CircuitHalfOpen:
		v = 1
	case CircuitOpen:
		v = 2
	}
	metrics.SetCircuitState(v)
}
