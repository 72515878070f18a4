// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package action

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/steward/cmd/steward/config"
	"github.com/AleutianAI/steward/cmd/steward/internal/intent"
)

func testPolicy() *Policy {
	return NewPolicy(config.PolicyConfig{
		ProtectedProcesses: []string{"winlogon.exe", "systemd", "steward"},
		AllowedPowerPlans:  []string{"balanced", "power_saver"},
	})
}

func TestPolicyCheck(t *testing.T) {
	p := testPolicy()

	tests := []struct {
		name    string
		in      intent.Intent
		allowed bool
	}{
		{"report status", intent.ReportStatus{}, true},
		{"list processes", intent.ListTopProcesses{Count: 10}, true},
		{"no action", intent.NoAction{}, true},
		{"terminate ordinary process", intent.TerminateProcess{PID: 4242, Name: "chrome.exe"}, true},
		{"terminate protected process", intent.TerminateProcess{PID: 1, Name: "systemd"}, false},
		{"terminate protected case-insensitive", intent.TerminateProcess{PID: 612, Name: "WinLogon.EXE"}, false},
		{"terminate self", intent.TerminateProcess{PID: 999, Name: "steward"}, false},
		{"allowed power plan", intent.SetPowerPlan{Plan: "balanced"}, true},
		{"allowed plan case-insensitive", intent.SetPowerPlan{Plan: "Power_Saver"}, true},
		{"disallowed power plan", intent.SetPowerPlan{Plan: "high_performance"}, false},
		{"unknown power plan", intent.SetPowerPlan{Plan: "ludicrous"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.Check(tt.in)
			assert.Equal(t, tt.allowed, d.Allowed)
			if !tt.allowed {
				assert.NotEmpty(t, d.Reason, "denials must carry a reason")
			}
		})
	}
}

func TestPolicyIsProtected(t *testing.T) {
	p := testPolicy()
	assert.True(t, p.IsProtected("SYSTEMD"))
	assert.False(t, p.IsProtected("chrome.exe"))
}

func TestPolicyEmptyConfig(t *testing.T) {
	p := NewPolicy(config.PolicyConfig{})
	assert.True(t, p.Check(intent.TerminateProcess{PID: 1, Name: "anything"}).Allowed)
	assert.False(t, p.Check(intent.SetPowerPlan{Plan: "balanced"}).Allowed,
		"an empty allowlist permits no plan changes")
}
