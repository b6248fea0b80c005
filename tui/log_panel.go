// ABOUTME: Implements a scrollable event log panel using the bubbles viewport component.
// ABOUTME: Displays build events with color-coded formatting based on event kind.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/buildr/build"
)

// LogPanelModel is a scrollable log of build events. Status and preview
// updates are too frequent to list and are left to the status bar.
type LogPanelModel struct {
	entries  []build.Event
	max      int
	viewport viewport.Model
	width    int
	height   int
}

// NewLogPanelModel creates a new log panel with a maximum number of entries.
// If maxEntries is <= 0, it defaults to 200.
func NewLogPanelModel(maxEntries int) LogPanelModel {
	if maxEntries <= 0 {
		maxEntries = 200
	}
	return LogPanelModel{
		entries:  make([]build.Event, 0, maxEntries),
		max:      maxEntries,
		viewport: viewport.New(80, 10),
	}
}

// Append adds an event to the log, evicting the oldest entry if at capacity.
// It reports whether the event was kept.
func (m *LogPanelModel) Append(ev build.Event) bool {
	switch ev.Kind {
	case build.EventStatusUpdated, build.EventPreviewUpdated:
		return false
	}
	if len(m.entries) >= m.max {
		m.entries = m.entries[1:]
	}
	m.entries = append(m.entries, ev)
	m.syncViewport()
	return true
}

// Len returns the number of entries in the log.
func (m LogPanelModel) Len() int {
	return len(m.entries)
}

// SetSize sets the available dimensions and updates the viewport.
func (m *LogPanelModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	// Border takes two lines and the title one.
	m.viewport.Width = max(w-2, 1)
	m.viewport.Height = max(h-3, 1)
	m.syncViewport()
}

// View renders the log panel.
func (m LogPanelModel) View() string {
	content := "Waiting for the model…"
	if len(m.entries) > 0 {
		content = m.viewport.View()
	}
	rendered := TitleStyle.Render("ACTIVITY") + "\n" + content
	return BorderStyle.
		Width(max(m.width-2, 1)).
		Height(max(m.height-2, 1)).
		Render(rendered)
}

func (m *LogPanelModel) syncViewport() {
	lines := make([]string, 0, len(m.entries))
	for _, ev := range m.entries {
		lines = append(lines, formatEntry(ev))
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

// formatEntry formats a single build event as a log line.
func formatEntry(ev build.Event) string {
	parts := []string{
		LogTimestampStyle.Render(ev.At.Format("15:04:05")),
		eventStyle(ev.Kind).Render(string(ev.Kind)),
	}
	switch ev.Kind {
	case build.EventStateChanged:
		parts = append(parts, string(ev.State))
	case build.EventMessageAppended:
		if ev.Message != nil {
			parts = append(parts, fmt.Sprintf("%s: %s", ev.Message.Role, clip(ev.Message.Content, 60)))
		}
	case build.EventDocumentCommitted:
		parts = append(parts, fmt.Sprintf("%d chars, %d issues", len(ev.Document), len(ev.Issues)))
	case build.EventFailed:
		if ev.Failure != nil {
			parts = append(parts, ev.Failure.Message)
		}
	}
	return strings.Join(parts, " ")
}

// clip shortens s to one line of at most n runes.
func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// eventStyle returns the appropriate lipgloss style for a given event kind.
func eventStyle(kind build.EventKind) lipgloss.Style {
	switch kind {
	case build.EventDocumentCommitted:
		return LogSuccessStyle
	case build.EventFailed:
		return LogErrorStyle
	case build.EventMessageAppended:
		return LogMessageStyle
	default:
		return LogEventStyle
	}
}
