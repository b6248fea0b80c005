// ABOUTME: Implements a single-line status bar for the bottom of the build view.
// ABOUTME: Displays the request, elapsed time, current stage, and streamed character count.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/buildr/build"
)

// StatusBarModel displays build progress in a single line.
type StatusBarModel struct {
	title     string
	startTime time.Time
	stage     string
	chars     int
	width     int
}

// NewStatusBarModel creates a new StatusBarModel for the given request.
func NewStatusBarModel(title string) StatusBarModel {
	return StatusBarModel{title: clip(title, 40), stage: build.StageStarting}
}

// Start records the build start time.
func (m *StatusBarModel) Start() {
	m.startTime = time.Now()
}

// SetStatus updates the stage and character count.
func (m *StatusBarModel) SetStatus(s build.Status) {
	m.stage = s.Stage
	m.chars = s.Chars
}

// SetWidth sets the bar width for rendering.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// Elapsed returns the time since Start() was called, or zero if not started.
func (m StatusBarModel) Elapsed() time.Duration {
	if m.startTime.IsZero() {
		return 0
	}
	return time.Since(m.startTime)
}

// formatElapsed formats a duration as a human-readable string.
// Durations under a minute show as seconds (e.g. "12s").
// Durations of a minute or more show as minutes and seconds (e.g. "2m30s").
func formatElapsed(d time.Duration) string {
	d = d.Truncate(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) - minutes*60
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}

// View renders the status bar as a single styled line.
func (m StatusBarModel) View() string {
	content := fmt.Sprintf("Build: %s | Elapsed: %s | %s | %d chars",
		m.title, formatElapsed(m.Elapsed()), m.stage, m.chars)
	style := StatusBarStyle.Width(m.width)
	return lipgloss.PlaceHorizontal(m.width, lipgloss.Left, style.Render(content))
}
