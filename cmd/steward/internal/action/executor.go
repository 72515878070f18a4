// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package action

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/AleutianAI/steward/cmd/steward/internal/intent"
	"github.com/AleutianAI/steward/cmd/steward/internal/sensors"
	"github.com/AleutianAI/steward/pkg/logging"
)

// Outcome records what happened to one intent. Every intent that
// reaches the executor produces exactly one Outcome, success or not.
type Outcome struct {
	Intent     intent.Intent `json:"intent"`
	Allowed    bool          `json:"allowed"`
	Succeeded  bool          `json:"succeeded"`
	Message    string        `json:"message"`
	ExecutedAt time.Time     `json:"executed_at"`
}

// osProcess is the slice of gopsutil's process handle the executor
// touches. *process.Process satisfies it.
type osProcess interface {
	NameWithContext(ctx context.Context) (string, error)
	TerminateWithContext(ctx context.Context) error
	KillWithContext(ctx context.Context) error
	IsRunningWithContext(ctx context.Context) (bool, error)
}

// windowsPlanGUIDs maps plan names onto the stock powercfg scheme GUIDs.
var windowsPlanGUIDs = map[string]string{
	"balanced":         "381b4222-f694-41f0-9685-ff5bb260df2e",
	"high_performance": "8c5e7fda-e8bf-4a96-9a85-a6e23a8c635c",
	"power_saver":      "a1841308-3541-4fab-bc81-f71556f20b4a",
}

// linuxPlanProfiles maps plan names onto power-profiles-daemon profiles.
var linuxPlanProfiles = map[string]string{
	"balanced":         "balanced",
	"high_performance": "performance",
	"power_saver":      "power-saver",
}

// Executor carries allowed intents out on the host.
//
// Description:
//
//	The executor re-checks policy itself so callers cannot skip it.
//	Termination is idempotent: a PID that is already gone is a
//	success, not an error. Power plan changes shell out through the
//	CommandRunner, which tests replace.
type Executor struct {
	policy *Policy
	runner CommandRunner
	logger *logging.Logger

	// swappable for tests
	goos          string
	findProcess   func(ctx context.Context, pid int32) (osProcess, error)
	listProcesses func(ctx context.Context) ([]osProcess, error)
	termGrace     time.Duration
	pollEvery     time.Duration
}

// NewExecutor creates an Executor bound to the given policy.
func NewExecutor(policy *Policy, runner CommandRunner, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.Discard()
	}
	if runner == nil {
		runner = NewExecRunner()
	}
	return &Executor{
		policy: policy,
		runner: runner,
		logger: logger,
		goos:   runtime.GOOS,
		findProcess: func(ctx context.Context, pid int32) (osProcess, error) {
			return process.NewProcessWithContext(ctx, pid)
		},
		listProcesses: func(ctx context.Context) ([]osProcess, error) {
			procs, err := process.ProcessesWithContext(ctx)
			if err != nil {
				return nil, err
			}
			out := make([]osProcess, len(procs))
			for i, p := range procs {
				out[i] = p
			}
			return out, nil
		},
		termGrace: 3 * time.Second,
		pollEvery: 100 * time.Millisecond,
	}
}

// Execute runs one intent against the host and returns its Outcome.
// The snapshot supplies the data for the read-only intents.
func (e *Executor) Execute(ctx context.Context, in intent.Intent, snap sensors.SystemSnapshot) Outcome {
	out := Outcome{Intent: in, ExecutedAt: time.Now().UTC()}

	decision := e.policy.Check(in)
	if !decision.Allowed {
		out.Message = "denied: " + decision.Reason
		e.logger.Warn("intent denied by policy", "kind", string(in.Kind()), "reason", decision.Reason)
		return out
	}
	out.Allowed = true

	switch v := in.(type) {
	case intent.ReportStatus:
		out.Succeeded = true
		out.Message = renderStatus(snap)
	case intent.ListTopProcesses:
		out.Succeeded = true
		out.Message = renderTopProcesses(snap, v.Count)
	case intent.NoAction:
		out.Succeeded = true
		if v.Note != "" {
			out.Message = v.Note
		} else {
			out.Message = "no action taken"
		}
	case intent.TerminateProcess:
		out.Succeeded, out.Message = e.terminate(ctx, v)
	case intent.SetPowerPlan:
		out.Succeeded, out.Message = e.setPowerPlan(ctx, v.Plan)
	default:
		out.Allowed = false
		out.Message = fmt.Sprintf("no executor for intent kind %q", in.Kind())
	}

	e.logger.Info("intent executed",
		"kind", string(in.Kind()),
		"succeeded", out.Succeeded,
	)
	return out
}

// terminate ends the target, SIGTERM first and SIGKILL after the
// grace period. The goal state is "target absent", so a process that
// is already gone (or vanished mid-flight) is a success.
func (e *Executor) terminate(ctx context.Context, t intent.TerminateProcess) (bool, string) {
	if t.PID != 0 {
		return e.terminateByPID(ctx, t)
	}
	return e.terminateByName(ctx, t.Name)
}

func (e *Executor) terminateByPID(ctx context.Context, t intent.TerminateProcess) (bool, string) {
	if t.PID > uint32(1<<31-1) {
		return false, fmt.Sprintf("pid %d is out of range for this platform", t.PID)
	}
	proc, err := e.findProcess(ctx, int32(t.PID))
	if err != nil {
		return true, fmt.Sprintf("process %d is already absent", t.PID)
	}

	// Guard against PID reuse: the live process must still carry the
	// name the decision was made about (when one was stated), and the
	// live name must pass policy even if the stated one did.
	actual, err := proc.NameWithContext(ctx)
	if err == nil {
		if t.Name != "" && !strings.EqualFold(actual, t.Name) {
			return false, fmt.Sprintf("pid %d is now %q, not %q; refusing to terminate", t.PID, actual, t.Name)
		}
		if e.policy.IsProtected(actual) {
			return false, fmt.Sprintf("process %q is protected by policy", actual)
		}
	}

	label := actual
	if label == "" {
		label = t.Name
	}
	return e.signalAndWait(ctx, proc, fmt.Sprintf("%d (%s)", t.PID, label))
}

func (e *Executor) terminateByName(ctx context.Context, name string) (bool, string) {
	procs, err := e.listProcesses(ctx)
	if err != nil {
		return false, fmt.Sprintf("failed to enumerate processes: %v", err)
	}

	var matched, ended int
	var lastFailure string
	for _, proc := range procs {
		actual, err := proc.NameWithContext(ctx)
		if err != nil || !strings.EqualFold(actual, name) {
			continue
		}
		matched++
		ok, msg := e.signalAndWait(ctx, proc, actual)
		if ok {
			ended++
		} else {
			lastFailure = msg
		}
	}

	switch {
	case matched == 0:
		return true, fmt.Sprintf("process %q is already absent", name)
	case ended == matched:
		return true, fmt.Sprintf("terminated %d instance(s) of %q", ended, name)
	default:
		return false, fmt.Sprintf("terminated %d of %d instance(s) of %q; last failure: %s",
			ended, matched, name, lastFailure)
	}
}

func (e *Executor) signalAndWait(ctx context.Context, proc osProcess, label string) (bool, string) {
	if err := proc.TerminateWithContext(ctx); err != nil {
		if isGone(err) {
			return true, fmt.Sprintf("process %s exited before termination", label)
		}
		return false, fmt.Sprintf("failed to terminate %s: %v", label, err)
	}

	deadline := time.Now().Add(e.termGrace)
	for time.Now().Before(deadline) {
		running, err := proc.IsRunningWithContext(ctx)
		if err != nil || !running {
			return true, fmt.Sprintf("terminated process %s", label)
		}
		select {
		case <-ctx.Done():
			return false, fmt.Sprintf("cancelled while waiting for %s to exit", label)
		case <-time.After(e.pollEvery):
		}
	}

	e.logger.Warn("process survived SIGTERM, escalating", "target", label)
	if err := proc.KillWithContext(ctx); err != nil && !isGone(err) {
		return false, fmt.Sprintf("failed to kill %s: %v", label, err)
	}
	return true, fmt.Sprintf("killed process %s", label)
}

// isGone reports whether an error indicates the process no longer exists.
func isGone(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "process already finished") ||
		strings.Contains(msg, "no such process") ||
		strings.Contains(msg, "process does not exist")
}

// setPowerPlan applies the plan with the platform's native tool.
func (e *Executor) setPowerPlan(ctx context.Context, plan string) (bool, string) {
	plan = strings.ToLower(plan)
	switch e.goos {
	case "windows":
		guid, ok := windowsPlanGUIDs[plan]
		if !ok {
			return false, fmt.Sprintf("no powercfg scheme known for plan %q", plan)
		}
		if out, err := e.runner.Run(ctx, "powercfg", "/setactive", guid); err != nil {
			return false, fmt.Sprintf("powercfg failed: %v", err)
		} else if out != "" {
			e.logger.Debug("powercfg output", "output", out)
		}
	case "linux":
		profile, ok := linuxPlanProfiles[plan]
		if !ok {
			return false, fmt.Sprintf("no power profile known for plan %q", plan)
		}
		if _, err := e.runner.Run(ctx, "powerprofilesctl", "set", profile); err != nil {
			return false, fmt.Sprintf("powerprofilesctl failed: %v", err)
		}
	default:
		return false, fmt.Sprintf("power plan changes are not supported on %s", e.goos)
	}
	return true, fmt.Sprintf("power plan set to %s", plan)
}

// renderStatus produces the human summary for ReportStatus.
func renderStatus(snap sensors.SystemSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CPU %.1f%%, memory %.1f%%, disk %.1f%%", snap.CPUPercent, snap.MemoryPercent, snap.DiskPercent)
	if snap.BatteryPercent != nil {
		state := "discharging"
		if snap.BatteryCharging {
			state = "charging"
		}
		fmt.Fprintf(&b, ", battery %.0f%% (%s)", *snap.BatteryPercent, state)
	}
	if _, conditions := sensors.DefaultThresholds().Exceeded(snap); len(conditions) > 0 {
		fmt.Fprintf(&b, "; attention: %s", strings.Join(conditions, ", "))
	}
	return b.String()
}

// renderTopProcesses produces the listing for ListTopProcesses.
func renderTopProcesses(snap sensors.SystemSnapshot, count int) string {
	top := snap.TopByMemory(count)
	if len(top) == 0 {
		return "no process data available"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "top %d processes by memory:\n", len(top))
	for i, p := range top {
		fmt.Fprintf(&b, "%2d. pid=%d name=%s cpu=%.1f%% memory=%s\n",
			i+1, p.PID, p.Name, p.CPUPercent, formatBytes(p.MemoryBytes))
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatBytes renders a byte count at a human scale.
func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}
