// Package tui implements the live log viewer behind `promptctl logs --follow
// --ui`: a Bubble Tea app that tails today's log file and renders entries in
// a scrollable, searchable viewport.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan).
			Padding(0, 1)

	sourceStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	followBadge = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(colorGreen).
			Padding(0, 1)

	pausedBadge = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(colorYellow).
			Padding(0, 1)

	filterBadge = lipgloss.NewStyle().
			Foreground(colorCyan)
)

var (
	keyStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	keyDescStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	countStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	highlightStyle = lipgloss.NewStyle().
			Background(colorYellow).
			Foreground(lipgloss.Color("0")).
			Bold(true)
)
