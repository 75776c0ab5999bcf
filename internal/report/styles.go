// Package report renders run, bench, check and history results: the
// tool's plain stdout contract for single runs, styled static tables for
// everything tabular, and JSON for machine consumers.
package report

import "github.com/charmbracelet/lipgloss"

// Styles holds the rendering styles. lipgloss degrades the colors to
// plain text on non-TTY output, so the same renderers serve pipes.
type Styles struct {
	Title   lipgloss.Style
	Header  lipgloss.Style
	Body    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
}

// DefaultStyles returns the standard palette.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2196F3")),
		Header:  lipgloss.NewStyle().Bold(true),
		Body:    lipgloss.NewStyle(),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")),
	}
}

// PlainStyles returns unstyled rendering for tests and --no-color output.
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Title:   plain,
		Header:  plain,
		Body:    plain,
		Muted:   plain,
		Success: plain,
		Error:   plain,
	}
}
