// ABOUTME: Bridge connecting the build orchestrator to the Bubble Tea message loop.
// ABOUTME: Provides EventBridge for event injection and the tea.Cmd that runs the build.
package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389-research/buildr/build"
)

// EventBridge forwards orchestrator events into a tea.Program. The send
// function may be bound after the orchestrator is built, but before the
// program starts.
type EventBridge struct {
	send func(msg tea.Msg)
}

// NewEventBridge creates an EventBridge that sends messages via the given function.
// Typically called with program.Send as the argument.
func NewEventBridge(send func(msg tea.Msg)) *EventBridge {
	return &EventBridge{send: send}
}

// Bind sets the send function.
func (b *EventBridge) Bind(send func(msg tea.Msg)) {
	b.send = send
}

// HandleEvent satisfies build.Observer.
func (b *EventBridge) HandleEvent(ev build.Event) {
	if b.send != nil {
		b.send(BuildEventMsg{Event: ev})
	}
}

// RunBuildCmd returns a tea.Cmd that submits text to orch and reports the
// settled result as a BuildResultMsg.
func RunBuildCmd(ctx context.Context, orch *build.Orchestrator, text string, opts build.SubmitOptions) tea.Cmd {
	return func() tea.Msg {
		res, err := orch.Submit(ctx, text, opts)
		return BuildResultMsg{Result: res, Err: err}
	}
}
