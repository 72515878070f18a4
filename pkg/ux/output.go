// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the Steward CLI.
package ux

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Steward color palette - cool slate blues with a warm accent
var (
	ColorPrimary   = lipgloss.Color("#4FA3D1") // Primary blue - brand, titles
	ColorHighlight = lipgloss.Color("#7EC8E3") // Light blue - highlights
	ColorAccent    = lipgloss.Color("#E3A857") // Warm amber - values, emphasis
	ColorSlate     = lipgloss.Color("#4A5568") // Slate - muted text, borders

	// Semantic colors
	ColorSuccess = lipgloss.Color("#48BB78") // Green for success
	ColorWarning = lipgloss.Color("#F4D03F") // Gold for warnings
	ColorError   = lipgloss.Color("#E74C3C") // Red for errors
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Box       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorHighlight).Bold(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorSlate).
		Padding(0, 1),
}

// Icon provides themed status icons.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return string(i)
	}
}

// Title prints a styled title line.
func Title(text string) {
	fmt.Println(Styles.Title.Render(text))
}

// Success prints a success message with a checkmark.
func Success(text string) {
	fmt.Printf("%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Warning prints a warning message.
func Warning(text string) {
	fmt.Printf("%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

// Error prints an error message to stderr.
func Error(text string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
}

// Info prints an informational line with a muted gutter.
func Info(text string) {
	fmt.Printf("%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints secondary text.
func Muted(text string) {
	fmt.Println(Styles.Muted.Render(text))
}

// KeyValue prints an aligned "key: value" line with the value accented.
func KeyValue(key, value string) {
	fmt.Printf("  %s %s\n",
		Styles.Muted.Render(fmt.Sprintf("%-14s", key+":")),
		lipgloss.NewStyle().Foreground(ColorAccent).Render(value))
}

// Box prints text inside a rounded border.
func Box(text string) {
	fmt.Println(Styles.Box.Render(text))
}
