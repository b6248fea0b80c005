// ABOUTME: Tests for AppModel message routing, the event bridge, and the build command.
// ABOUTME: Drives the model with messages directly against a canned stream generator.
package tui

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389-research/buildr/build"
	"github.com/2389-research/buildr/stream"
)

const page = `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>Crumb</title></head><body><main><h1>Crumb</h1></main></body></html>`

func cannedGenerator(chunks ...string) build.Generator {
	return build.GeneratorFunc(func(context.Context, build.GenerateRequest) (io.ReadCloser, error) {
		var b bytes.Buffer
		for _, c := range chunks {
			b.Write(stream.Encode(stream.Record{Content: c}))
		}
		b.Write(stream.EncodeDone())
		return io.NopCloser(&b), nil
	})
}

func sized(m AppModel) AppModel {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(AppModel)
}

func TestRunBuildCmdReportsResult(t *testing.T) {
	var events []build.Event
	bridge := NewEventBridge(func(msg tea.Msg) {
		events = append(events, msg.(BuildEventMsg).Event)
	})
	orch := build.NewOrchestrator(cannedGenerator(page), build.WithObserver(bridge.HandleEvent))

	msg := RunBuildCmd(context.Background(), orch, "a bakery", build.SubmitOptions{})()
	res, ok := msg.(BuildResultMsg)
	if !ok {
		t.Fatalf("msg = %T, want BuildResultMsg", msg)
	}
	if res.Err != nil || res.Result == nil || res.Result.Outcome != build.OutcomeSuccess {
		t.Fatalf("result = %+v, %v", res.Result, res.Err)
	}
	if len(events) == 0 {
		t.Error("bridge forwarded no events")
	}
}

func TestEventBridgeUnboundDrops(t *testing.T) {
	b := NewEventBridge(nil)
	b.HandleEvent(build.Event{Kind: build.EventFailed})

	var got int
	b.Bind(func(tea.Msg) { got++ })
	b.HandleEvent(build.Event{Kind: build.EventFailed})
	if got != 1 {
		t.Errorf("sent %d messages, want 1", got)
	}
}

func TestAppModelTracksStatus(t *testing.T) {
	m := sized(NewAppModel(context.Background(), nil, "a bakery", build.SubmitOptions{}))

	next, _ := m.Update(BuildEventMsg{Event: build.Event{Kind: build.EventStateChanged, State: build.StateSubmitting, At: at}})
	m = next.(AppModel)
	next, _ = m.Update(BuildEventMsg{Event: build.Event{Kind: build.EventStatusUpdated,
		Status: &build.Status{Stage: build.StageStyles, Chars: 420}, At: at}})
	m = next.(AppModel)

	if m.statusBar.startTime.IsZero() {
		t.Error("status bar not started")
	}
	view := m.View()
	for _, want := range []string{"Building", "ACTIVITY", "state_changed", build.StageStyles, "420 chars"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestAppModelQuitsOnResult(t *testing.T) {
	m := sized(NewAppModel(context.Background(), nil, "a bakery", build.SubmitOptions{}))
	next, cmd := m.Update(BuildResultMsg{Result: &build.Result{Outcome: build.OutcomeSuccess, Document: page}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("cmd() = %T, want tea.QuitMsg", cmd())
	}
	app := next.(AppModel)
	res, err := app.Result()
	if err != nil || res == nil || res.Document != page {
		t.Errorf("Result = %+v, %v", res, err)
	}
	if !strings.Contains(app.View(), "SUCCESS") {
		t.Errorf("view = %q", app.View())
	}
}

func TestAppModelShowsError(t *testing.T) {
	m := sized(NewAppModel(context.Background(), nil, "a bakery", build.SubmitOptions{}))
	next, _ := m.Update(BuildResultMsg{Err: errors.New("busy")})
	if !strings.Contains(next.(AppModel).View(), "FAILED: busy") {
		t.Errorf("view = %q", next.(AppModel).View())
	}
}

func TestAppModelQuitKeyCancels(t *testing.T) {
	m := NewAppModel(context.Background(), nil, "a bakery", build.SubmitOptions{})
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	app := next.(AppModel)
	if app.ctx.Err() == nil {
		t.Error("context not cancelled")
	}
	if res, err := app.Result(); res != nil || err != nil {
		t.Errorf("Result = %v, %v", res, err)
	}
}

func TestAppModelSmallTerminal(t *testing.T) {
	m := NewAppModel(context.Background(), nil, "a bakery", build.SubmitOptions{})
	if got := m.View(); got != "Initializing..." {
		t.Errorf("View = %q", got)
	}
	next, _ := m.Update(tea.WindowSizeMsg{Width: 20, Height: 5})
	if got := next.(AppModel).View(); !strings.Contains(got, "Terminal too small") {
		t.Errorf("View = %q", got)
	}
}
