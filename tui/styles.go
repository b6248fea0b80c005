// ABOUTME: Defines lipgloss styles for the build progress view: panels, outcome colors, and log lines.
// ABOUTME: StyleForSeverity and StyleForOutcome map build results to their display styles.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/buildr/build"
	"github.com/2389-research/buildr/validate"
)

var (
	// Panel borders
	BorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62"))

	// Title styling
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	// Outcome colors
	RunningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	CompletedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	PartialStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	FailedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	MutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	// Log event colors
	LogTimestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	LogEventStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	LogErrorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	LogSuccessStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	LogMessageStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("183"))

	// Status bar
	StatusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)
)

// StyleForSeverity returns the style for a validator issue.
func StyleForSeverity(s validate.Severity) lipgloss.Style {
	switch s {
	case validate.SeverityError:
		return FailedStyle
	case validate.SeverityWarning:
		return PartialStyle
	default:
		return MutedStyle
	}
}

// StyleForOutcome returns the style for a settled build.
func StyleForOutcome(o build.Outcome) lipgloss.Style {
	switch o {
	case build.OutcomeSuccess, build.OutcomeInstant:
		return CompletedStyle
	case build.OutcomePartial:
		return PartialStyle
	case build.OutcomeFailed:
		return FailedStyle
	default:
		return LogMessageStyle
	}
}
