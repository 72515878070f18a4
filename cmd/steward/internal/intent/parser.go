// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package intent

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/steward/pkg/logging"
)

// ParseError reports a tagged line that does not match any intent
// shape. It is recorded by the loop, never propagated as a crash.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable action line %q: %s", e.Line, e.Reason)
}

// UnknownIntentError reports a tagged line whose kind is not in the
// closed set.
type UnknownIntentError struct {
	Tag string
}

func (e *UnknownIntentError) Error() string {
	return fmt.Sprintf("unknown intent kind %q", e.Tag)
}

// Parser converts raw model text into a validated Intent.
//
// # Trust Boundary
//
// The raw text is adversarial input even though the backend is local.
// Only exact matches to a known intent shape pass; free prose resolves
// to NoAction, and malformed tagged lines are errors, never guesses.
//
// # Tie-break
//
// When the text contains several ACTION lines, the first one decides
// the outcome (parse result or error). The rest are logged and
// ignored, never merged.
type Parser struct {
	logger *logging.Logger
}

// NewParser creates a Parser. A nil logger is replaced with a discard
// logger so Parse stays total.
func NewParser(logger *logging.Logger) *Parser {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Parser{logger: logger}
}

// Parse extracts the first action directive from raw model text.
//
// Lines are scanned in order. The first line starting with "ACTION="
// is authoritative: it either parses into an Intent or yields a
// ParseError/UnknownIntentError. Later tagged lines are logged and
// dropped. Text with no tagged line at all is a conversational
// response and resolves to NoAction with no error.
func (p *Parser) Parse(raw string) (Intent, error) {
	var (
		parsed  Intent
		perr    error
		decided bool
	)

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, Tag) {
			continue
		}
		if decided {
			p.logger.Warn("ignoring extra action line", "line", line)
			continue
		}
		parsed, perr = parseLine(line)
		decided = true
	}

	if !decided {
		return NoAction{Note: "no action directive in response"}, nil
	}
	return parsed, perr
}

// parseLine parses one "ACTION=Kind key=value ..." line.
func parseLine(line string) (Intent, error) {
	fields, err := splitQuoted(strings.TrimPrefix(line, Tag))
	if err != nil {
		return nil, &ParseError{Line: line, Reason: err.Error()}
	}
	if len(fields) == 0 || fields[0] == "" {
		return nil, &ParseError{Line: line, Reason: "missing intent kind"}
	}

	kind := fields[0]
	args, err := parseArgs(fields[1:])
	if err != nil {
		return nil, &ParseError{Line: line, Reason: err.Error()}
	}

	switch Kind(kind) {
	case KindReportStatus:
		if err := rejectKeys(args); err != nil {
			return nil, &ParseError{Line: line, Reason: err.Error()}
		}
		return ReportStatus{}, nil

	case KindNoAction:
		if err := rejectKeys(args); err != nil {
			return nil, &ParseError{Line: line, Reason: err.Error()}
		}
		return NoAction{Note: "model recommended no action"}, nil

	case KindTerminateProcess:
		it, err := parseTerminate(args)
		if err != nil {
			return nil, &ParseError{Line: line, Reason: err.Error()}
		}
		return it, nil

	case KindSetPowerPlan:
		it, err := parsePowerPlan(args)
		if err != nil {
			return nil, &ParseError{Line: line, Reason: err.Error()}
		}
		return it, nil

	case KindListTopProcesses:
		it, err := parseListTop(args)
		if err != nil {
			return nil, &ParseError{Line: line, Reason: err.Error()}
		}
		return it, nil

	default:
		return nil, &UnknownIntentError{Tag: kind}
	}
}

func parseTerminate(args map[string]string) (Intent, error) {
	pidStr, hasPID := args["pid"]
	target, hasTarget := args["target"]
	reason := args["reason"]
	delete(args, "pid")
	delete(args, "target")
	delete(args, "reason")
	if err := rejectKeys(args); err != nil {
		return nil, err
	}

	switch {
	case hasPID && hasTarget:
		return nil, errors.New("pid and target are mutually exclusive")
	case hasPID:
		pid, err := parseBoundedUint(pidStr, "pid", MaxPID)
		if err != nil {
			return nil, err
		}
		if pid == 0 {
			return nil, errors.New("pid must be positive")
		}
		return TerminateProcess{PID: uint32(pid), Reason: reason}, nil
	case hasTarget:
		if target == "" {
			return nil, errors.New("target must not be empty")
		}
		return TerminateProcess{Name: target, Reason: reason}, nil
	default:
		return nil, errors.New("TerminateProcess requires pid or target")
	}
}

func parsePowerPlan(args map[string]string) (Intent, error) {
	plan, ok := args["plan"]
	delete(args, "plan")
	if err := rejectKeys(args); err != nil {
		return nil, err
	}
	if !ok || plan == "" {
		return nil, errors.New("SetPowerPlan requires plan")
	}
	return SetPowerPlan{Plan: plan}, nil
}

func parseListTop(args map[string]string) (Intent, error) {
	countStr, ok := args["count"]
	delete(args, "count")
	if err := rejectKeys(args); err != nil {
		return nil, err
	}
	if !ok {
		return ListTopProcesses{Count: DefaultListCount}, nil
	}
	count, err := parseBoundedUint(countStr, "count", MaxListCount+1)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, errors.New("count must be positive")
	}
	return ListTopProcesses{Count: int(count)}, nil
}

// parseBoundedUint parses a non-negative integer strictly below limit.
// Out-of-range values are errors, not clamped.
func parseBoundedUint(s, name string, limit uint64) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", name, s)
	}
	if v >= limit {
		return 0, fmt.Errorf("%s %d out of range (max %d)", name, v, limit-1)
	}
	return v, nil
}

// parseArgs converts "key=value" fields into a map, rejecting
// duplicates and bare words.
func parseArgs(fields []string) (map[string]string, error) {
	args := make(map[string]string, len(fields))
	for _, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", field)
		}
		key = strings.ToLower(key)
		if _, dup := args[key]; dup {
			return nil, fmt.Errorf("duplicate key %q", key)
		}
		args[key] = value
	}
	return args, nil
}

// rejectKeys fails on any key left unconsumed by the variant parser.
func rejectKeys(args map[string]string) error {
	for key := range args {
		return fmt.Errorf("unexpected key %q", key)
	}
	return nil
}

// splitQuoted splits on spaces while honoring double-quoted segments,
// so target="Google Chrome" survives as one field.
func splitQuoted(s string) ([]string, error) {
	var (
		fields  []string
		current strings.Builder
		quoted  bool
		started bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			started = true
		case r == ' ' && !quoted:
			if started {
				fields = append(fields, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(r)
			started = true
		}
	}
	if quoted {
		return nil, errors.New("unterminated quote")
	}
	if started {
		fields = append(fields, current.String())
	}
	return fields, nil
}
