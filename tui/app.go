// ABOUTME: Top-level Bubble Tea AppModel composing the spinner, activity log, and status bar into one view.
// ABOUTME: Implements tea.Model (Init, Update, View) and runs a single build request to completion.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389-research/buildr/build"
)

// AppModel is the top-level Bubble Tea model for one build request.
type AppModel struct {
	spin      spinner.Model
	log       LogPanelModel
	statusBar StatusBarModel

	orch   *build.Orchestrator
	text   string
	opts   build.SubmitOptions
	ctx    context.Context
	cancel context.CancelFunc

	done   bool
	result *build.Result
	err    error
	width  int
	height int
}

// NewAppModel creates an AppModel that submits text to orch when started.
func NewAppModel(ctx context.Context, orch *build.Orchestrator, text string, opts build.SubmitOptions) AppModel {
	ctx, cancel := context.WithCancel(ctx)
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = RunningStyle
	return AppModel{
		spin:      spin,
		log:       NewLogPanelModel(200),
		statusBar: NewStatusBarModel(text),
		orch:      orch,
		text:      text,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Init implements tea.Model. Starts the build and the spinner.
func (m AppModel) Init() tea.Cmd {
	return tea.Batch(RunBuildCmd(m.ctx, m.orch, m.text, m.opts), m.spin.Tick)
}

// Update implements tea.Model.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleWindowSize(msg)

	case BuildEventMsg:
		return m.handleBuildEvent(msg)

	case BuildResultMsg:
		return m.handleBuildResult(msg)

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	return m, nil
}

// View implements tea.Model.
func (m AppModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.width < 40 || m.height < 8 {
		return fmt.Sprintf("Terminal too small (%dx%d). Minimum: 40x8.", m.width, m.height)
	}

	m.log.SetSize(m.width, m.height-2)
	m.statusBar.SetWidth(m.width)

	var b strings.Builder
	b.WriteString(m.headline())
	b.WriteString("\n")
	b.WriteString(m.log.View())
	b.WriteString("\n")
	b.WriteString(m.statusBar.View())
	return b.String()
}

// Result returns the settled build, or the error that stopped it.
func (m AppModel) Result() (*build.Result, error) {
	return m.result, m.err
}

func (m AppModel) headline() string {
	switch {
	case !m.done:
		return m.spin.View() + " " + TitleStyle.Render("Building")
	case m.err != nil:
		return FailedStyle.Render(fmt.Sprintf("FAILED: %v", m.err))
	case m.result == nil:
		return MutedStyle.Render("Cancelled")
	default:
		line := StyleForOutcome(m.result.Outcome).Render(strings.ToUpper(string(m.result.Outcome)))
		if n := len(m.result.Issues); n > 0 {
			line += " " + StyleForSeverity(m.result.Issues[0].Severity).Render(fmt.Sprintf("%d issues", n))
		}
		return line
	}
}

func (m AppModel) handleWindowSize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	return m, nil
}

// handleBuildEvent feeds the activity log and the status bar.
func (m AppModel) handleBuildEvent(msg BuildEventMsg) (tea.Model, tea.Cmd) {
	ev := msg.Event
	m.log.Append(ev)

	switch ev.Kind {
	case build.EventStateChanged:
		if ev.State == build.StateSubmitting {
			m.statusBar.Start()
		}
	case build.EventStatusUpdated:
		if ev.Status != nil {
			m.statusBar.SetStatus(*ev.Status)
		}
	}
	return m, nil
}

// handleBuildResult records the outcome and exits the program.
func (m AppModel) handleBuildResult(msg BuildResultMsg) (tea.Model, tea.Cmd) {
	m.done = true
	m.result = msg.Result
	m.err = msg.Err
	m.cancel()
	return m, tea.Quit
}

func (m AppModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.cancel()
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

// Run builds text with gen inside a full-screen progress view written to
// w. It returns once the request settles or the user quits.
func Run(ctx context.Context, gen build.Generator, text string, opts build.SubmitOptions, w io.Writer, buildOpts ...build.Option) (*build.Result, error) {
	bridge := NewEventBridge(nil)
	buildOpts = append(buildOpts, build.WithObserver(bridge.HandleEvent))
	orch := build.NewOrchestrator(gen, buildOpts...)

	model := NewAppModel(ctx, orch, text, opts)
	p := tea.NewProgram(model, tea.WithOutput(w), tea.WithContext(ctx))
	bridge.Bind(p.Send)

	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("tui: %w", err)
	}
	app, ok := final.(AppModel)
	if !ok {
		return nil, fmt.Errorf("tui: unexpected model %T", final)
	}
	res, err := app.Result()
	if err == nil && res == nil {
		return nil, context.Canceled
	}
	return res, err
}
