// ABOUTME: Bubble Tea message types used in the build progress message loop.
// ABOUTME: Each type wraps a build event or result for the tea.Msg interface.
package tui

import (
	"github.com/2389-research/buildr/build"
)

// BuildEventMsg wraps an orchestrator event for the Bubble Tea message loop.
type BuildEventMsg struct {
	Event build.Event
}

// BuildResultMsg signals that the build request has settled.
type BuildResultMsg struct {
	Result *build.Result
	Err    error
}
