// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package audit persists one record per decision cycle so every
// action the model took (or was refused) can be reconstructed later.
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/steward/cmd/steward/internal/sensors"
)

// Trigger says what started a cycle.
type Trigger string

const (
	TriggerInteractive Trigger = "interactive"
	TriggerBackground  Trigger = "background"
)

// CycleRecord is the full audit trail of one decision cycle: what the
// machine looked like, what the model said, how it was interpreted,
// and what actually happened.
type CycleRecord struct {
	ID           string                 `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	Trigger      Trigger                `json:"trigger"`
	UserRequest  string                 `json:"user_request,omitempty"`
	Snapshot     sensors.SystemSnapshot `json:"snapshot"`
	RawModelText string                 `json:"raw_model_text"`
	IntentKind   string                 `json:"intent_kind,omitempty"`
	IntentText   string                 `json:"intent_text,omitempty"`
	ParseError   string                 `json:"parse_error,omitempty"`
	Allowed      bool                   `json:"allowed"`
	Succeeded    bool                   `json:"succeeded"`
	Message      string                 `json:"message"`
	ExecutedAt   time.Time              `json:"executed_at,omitempty"`
}

// NewCycleRecord starts a record with identity and timestamp filled in.
func NewCycleRecord(trigger Trigger) CycleRecord {
	return CycleRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Trigger:   trigger,
	}
}

// WithRequest sets the user request for an interactive cycle.
func (r CycleRecord) WithRequest(request string) CycleRecord {
	r.UserRequest = request
	return r
}

// WithSnapshot attaches the observed system state.
func (r CycleRecord) WithSnapshot(snap sensors.SystemSnapshot) CycleRecord {
	r.Snapshot = snap
	return r
}

// WithModelText attaches the raw backend response.
func (r CycleRecord) WithModelText(text string) CycleRecord {
	r.RawModelText = text
	return r
}
