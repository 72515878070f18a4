// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package action validates parsed intents against local policy and
// carries the allowed ones out on the host. Policy runs before any
// OS call: a denied intent never touches the system.
package action

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/steward/cmd/steward/config"
	"github.com/AleutianAI/steward/cmd/steward/internal/intent"
)

// Policy decides which intents may execute on this machine.
//
// Description:
//
//	Read-only intents (ReportStatus, ListTopProcesses, NoAction) are
//	always allowed. TerminateProcess is denied for any process on the
//	protected list, matched case-insensitively by name. SetPowerPlan
//	is denied for plans outside the allowlist.
type Policy struct {
	protected map[string]struct{}
	plans     map[string]struct{}
}

// NewPolicy builds a Policy from configuration. Lookups are
// normalized to lower case once, at construction.
func NewPolicy(cfg config.PolicyConfig) *Policy {
	p := &Policy{
		protected: make(map[string]struct{}, len(cfg.ProtectedProcesses)),
		plans:     make(map[string]struct{}, len(cfg.AllowedPowerPlans)),
	}
	for _, name := range cfg.ProtectedProcesses {
		p.protected[strings.ToLower(name)] = struct{}{}
	}
	for _, plan := range cfg.AllowedPowerPlans {
		p.plans[strings.ToLower(plan)] = struct{}{}
	}
	return p
}

// Decision is the outcome of a policy check.
type Decision struct {
	Allowed bool
	Reason  string // populated only on denial
}

func allow() Decision { return Decision{Allowed: true} }

func deny(format string, args ...any) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// Check validates a single intent. It performs no OS calls.
func (p *Policy) Check(in intent.Intent) Decision {
	switch v := in.(type) {
	case intent.TerminateProcess:
		if _, ok := p.protected[strings.ToLower(v.Name)]; ok {
			return deny("process %q is protected by policy", v.Name)
		}
		return allow()
	case intent.SetPowerPlan:
		if _, ok := p.plans[strings.ToLower(v.Plan)]; !ok {
			return deny("power plan %q is not in the allowed list", v.Plan)
		}
		return allow()
	case intent.ReportStatus, intent.ListTopProcesses, intent.NoAction:
		return allow()
	default:
		return deny("unrecognized intent kind %q", in.Kind())
	}
}

// IsProtected reports whether a process name is on the protected list.
func (p *Policy) IsProtected(name string) bool {
	_, ok := p.protected[strings.ToLower(name)]
	return ok
}
