// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package intent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWellFormedIntents(t *testing.T) {
	p := NewParser(nil)

	cases := []struct {
		name string
		raw  string
		want Intent
	}{
		{
			name: "terminate by name",
			raw:  "ACTION=TerminateProcess target=chrome.exe reason=high_memory",
			want: TerminateProcess{Name: "chrome.exe", Reason: "high_memory"},
		},
		{
			name: "terminate by pid",
			raw:  "ACTION=TerminateProcess pid=4242 reason=runaway",
			want: TerminateProcess{PID: 4242, Reason: "runaway"},
		},
		{
			name: "quoted target with spaces",
			raw:  `ACTION=TerminateProcess target="Google Chrome" reason=high_memory`,
			want: TerminateProcess{Name: "Google Chrome", Reason: "high_memory"},
		},
		{
			name: "set power plan",
			raw:  "ACTION=SetPowerPlan plan=power_saver",
			want: SetPowerPlan{Plan: "power_saver"},
		},
		{
			name: "list top processes",
			raw:  "ACTION=ListTopProcesses count=5",
			want: ListTopProcesses{Count: 5},
		},
		{
			name: "list defaults count",
			raw:  "ACTION=ListTopProcesses",
			want: ListTopProcesses{Count: DefaultListCount},
		},
		{
			name: "report status",
			raw:  "ACTION=ReportStatus",
			want: ReportStatus{},
		},
		{
			name: "explicit no action",
			raw:  "ACTION=NoAction",
			want: NoAction{Note: "model recommended no action"},
		},
		{
			name: "directive embedded in prose",
			raw:  "Memory is tight, so:\n\nACTION=TerminateProcess target=chrome.exe reason=high_memory\n\nThat should help.",
			want: TerminateProcess{Name: "chrome.exe", Reason: "high_memory"},
		},
		{
			name: "indented directive",
			raw:  "  ACTION=ReportStatus  ",
			want: ReportStatus{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := p.Parse(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseProseResolvesToNoAction(t *testing.T) {
	p := NewParser(nil)

	for _, raw := range []string{
		"I think everything looks fine!",
		"",
		"Your CPU is at 20%, nothing to worry about.\nHave a nice day.",
		// Tag not at line start is prose, not a directive.
		"You could run ACTION=ReportStatus yourself if curious.",
	} {
		got, err := p.Parse(raw)
		require.NoError(t, err, "raw: %q", raw)
		assert.Equal(t, KindNoAction, got.Kind(), "raw: %q", raw)
	}
}

func TestParseFirstDirectiveWins(t *testing.T) {
	p := NewParser(nil)

	raw := "ACTION=ReportStatus\nACTION=TerminateProcess target=chrome.exe reason=x"
	got, err := p.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, ReportStatus{}, got)
}

func TestParseFirstDirectiveDecidesEvenWhenMalformed(t *testing.T) {
	p := NewParser(nil)

	// A broken first directive is an error; a later valid one must not
	// rescue it.
	raw := "ACTION=TerminateProcess pid=banana\nACTION=ReportStatus"
	_, err := p.Parse(raw)
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestParseUnknownKind(t *testing.T) {
	p := NewParser(nil)

	_, err := p.Parse("ACTION=FormatDisk drive=C")
	var uerr *UnknownIntentError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "FormatDisk", uerr.Tag)
}

func TestParseMalformedDirectives(t *testing.T) {
	p := NewParser(nil)

	cases := map[string]string{
		"non-numeric pid":        "ACTION=TerminateProcess pid=abc",
		"negative pid":           "ACTION=TerminateProcess pid=-5",
		"pid zero":               "ACTION=TerminateProcess pid=0",
		"pid out of range":       "ACTION=TerminateProcess pid=4294967296",
		"pid and target both":    "ACTION=TerminateProcess pid=1 target=x",
		"neither pid nor target": "ACTION=TerminateProcess reason=why",
		"empty target":           `ACTION=TerminateProcess target=""`,
		"missing plan":           "ACTION=SetPowerPlan",
		"count zero":             "ACTION=ListTopProcesses count=0",
		"count over limit":       "ACTION=ListTopProcesses count=51",
		"unexpected key":         "ACTION=ReportStatus verbose=true",
		"bare word argument":     "ACTION=TerminateProcess chrome.exe",
		"duplicate key":          "ACTION=TerminateProcess target=a target=b",
		"unterminated quote":     `ACTION=TerminateProcess target="Google`,
		"empty kind":             "ACTION=",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := p.Parse(raw)
			require.Error(t, err)
			var perr *ParseError
			assert.True(t, errors.As(err, &perr), "expected ParseError, got %T: %v", err, err)
		})
	}
}

func TestParseNumbersAreNeverClamped(t *testing.T) {
	p := NewParser(nil)

	_, err := p.Parse("ACTION=ListTopProcesses count=9999")
	require.Error(t, err)

	// Sanity: the boundary value itself is accepted.
	got, err := p.Parse("ACTION=ListTopProcesses count=50")
	require.NoError(t, err)
	assert.Equal(t, ListTopProcesses{Count: 50}, got)
}

func TestParseIsDeterministic(t *testing.T) {
	p := NewParser(nil)
	raw := "ACTION=TerminateProcess target=chrome.exe reason=high_memory"

	first, err := p.Parse(raw)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := p.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestIntentStringRendersGrammarForm(t *testing.T) {
	assert.Equal(t,
		`ACTION=TerminateProcess target="chrome.exe" reason="high_memory"`,
		TerminateProcess{Name: "chrome.exe", Reason: "high_memory"}.String())
	assert.Equal(t, "ACTION=SetPowerPlan plan=balanced", SetPowerPlan{Plan: "balanced"}.String())
	assert.Equal(t, "ACTION=NoAction", NoAction{}.String())
}
