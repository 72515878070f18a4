// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package intent defines the closed set of actions the model may
// recommend, and the strict single-line grammar that carries them.
//
// Model output is untrusted input. The only way text becomes an
// executable action is by matching one of the shapes in this package
// exactly; everything else is conversation.
package intent

import "fmt"

// Kind names one intent variant.
type Kind string

const (
	KindReportStatus     Kind = "ReportStatus"
	KindTerminateProcess Kind = "TerminateProcess"
	KindSetPowerPlan     Kind = "SetPowerPlan"
	KindListTopProcesses Kind = "ListTopProcesses"
	KindNoAction         Kind = "NoAction"
)

// Tag is the line prefix that marks an action directive.
const Tag = "ACTION="

// MaxPID is the exclusive upper bound for pid values (2^32).
const MaxPID = uint64(1) << 32

// MaxListCount bounds ListTopProcesses requests.
const MaxListCount = 50

// DefaultListCount is used when ListTopProcesses omits count.
const DefaultListCount = 10

// GrammarInstructions is the output contract embedded verbatim in every
// prompt. The parser accepts exactly what this text describes; changing
// one without the other breaks the loop, which is why both live here.
const GrammarInstructions = `If an action should be taken, reply with exactly one line in this format
(no markdown, no surrounding prose on that line):

ACTION=<Kind> key=value key=value

Valid kinds and their keys:
  ACTION=ReportStatus
  ACTION=TerminateProcess target=<process name> reason=<short_reason>
  ACTION=TerminateProcess pid=<process id> reason=<short_reason>
  ACTION=SetPowerPlan plan=<balanced|high_performance|power_saver>
  ACTION=ListTopProcesses count=<1-50>
  ACTION=NoAction

Values containing spaces must be double-quoted, e.g. target="Google Chrome".
If no action is needed, either reply ACTION=NoAction or simply answer in
plain language with no ACTION line.`

// Intent is one validated action recommendation. The concrete types in
// this package are the only implementations; each carries exactly the
// fields needed to execute it.
type Intent interface {
	// Kind returns the variant tag.
	Kind() Kind
	// String renders the intent in grammar form, for logs and audit.
	String() string
}

// ReportStatus asks for a read-only summary of the current snapshot.
type ReportStatus struct{}

func (ReportStatus) Kind() Kind     { return KindReportStatus }
func (ReportStatus) String() string { return Tag + string(KindReportStatus) }

// TerminateProcess asks to terminate one process, addressed by PID or
// by name. Exactly one of PID/Name is set; the parser rejects lines
// carrying both or neither.
type TerminateProcess struct {
	PID    uint32
	Name   string
	Reason string
}

func (TerminateProcess) Kind() Kind { return KindTerminateProcess }

func (t TerminateProcess) String() string {
	if t.Name != "" {
		return fmt.Sprintf("%s%s target=%q reason=%q", Tag, KindTerminateProcess, t.Name, t.Reason)
	}
	return fmt.Sprintf("%s%s pid=%d reason=%q", Tag, KindTerminateProcess, t.PID, t.Reason)
}

// SetPowerPlan asks to switch the machine's power plan.
type SetPowerPlan struct {
	Plan string
}

func (SetPowerPlan) Kind() Kind { return KindSetPowerPlan }

func (p SetPowerPlan) String() string {
	return fmt.Sprintf("%s%s plan=%s", Tag, KindSetPowerPlan, p.Plan)
}

// ListTopProcesses asks for the top resource consumers, read-only.
type ListTopProcesses struct {
	Count int
}

func (ListTopProcesses) Kind() Kind { return KindListTopProcesses }

func (l ListTopProcesses) String() string {
	return fmt.Sprintf("%s%s count=%d", Tag, KindListTopProcesses, l.Count)
}

// NoAction is the explicit (or inferred) "nothing to do" outcome.
// Note preserves a short reason for the audit trail.
type NoAction struct {
	Note string
}

func (NoAction) Kind() Kind     { return KindNoAction }
func (NoAction) String() string { return Tag + string(KindNoAction) }
