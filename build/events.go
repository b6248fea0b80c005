// ABOUTME: Conversation messages, progress status, and the typed events the orchestrator emits.
// ABOUTME: Observers get every event synchronously; a Recorder gets fire-and-forget log records.

package build

import (
	"strings"
	"time"

	"github.com/2389-research/buildr/validate"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the build conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Code      string    `json:"code,omitempty"`
	Partial   bool      `json:"partial,omitempty"`
	Failed    bool      `json:"failed,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Status is the progress line shown while a response streams.
type Status struct {
	Stage string `json:"stage"`
	Chars int    `json:"chars"`
}

const (
	StageStarting   = "Starting…"
	StageGenerating = "Generating…"
	StageStyles     = "Writing styles…"
	StageResponsive = "Making it responsive…"
	StageScript     = "Adding JavaScript…"
	StageFinishing  = "Finishing up…"
)

// stageFor picks the status stage from the markers present in text.
func stageFor(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "</html>"):
		return StageFinishing
	case strings.Contains(lower, "<script"):
		return StageScript
	case strings.Contains(lower, "@media"):
		return StageResponsive
	case strings.Contains(lower, "<style"):
		return StageStyles
	case text == "":
		return StageStarting
	default:
		return StageGenerating
	}
}

// Failure is a surfaced build error. Retryable failures can be replayed
// with Orchestrator.Retry.
type Failure struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// EventKind names an orchestrator event.
type EventKind string

const (
	EventStateChanged      EventKind = "state_changed"
	EventStatusUpdated     EventKind = "status_updated"
	EventPreviewUpdated    EventKind = "preview_updated"
	EventDocumentCommitted EventKind = "document_committed"
	EventMessageAppended   EventKind = "message_appended"
	EventFailed            EventKind = "failed"
)

// Event is delivered to observers. Only the fields relevant to Kind are set.
type Event struct {
	Kind     EventKind        `json:"kind"`
	State    State            `json:"state,omitempty"`
	Status   *Status          `json:"status,omitempty"`
	Preview  string           `json:"preview,omitempty"`
	Document string           `json:"document,omitempty"`
	Issues   []validate.Issue `json:"issues,omitempty"`
	Message  *Message         `json:"message,omitempty"`
	Failure  *Failure         `json:"failure,omitempty"`
	// Replaces is the ID of a failed placeholder this message supersedes.
	Replaces string    `json:"replaces,omitempty"`
	At       time.Time `json:"at"`
}

// Observer receives orchestrator events. It is called with the
// orchestrator's lock released and must not block for long.
type Observer func(Event)

// Log event names sent to a Recorder.
const (
	LogBuildStart      = "build_start"
	LogBuildSuccess    = "build_success"
	LogBuildError      = "build_error"
	LogStreamError     = "stream_error"
	LogRecoveryPartial = "recovery_partial"
	LogInstantEdit     = "instant_edit"
)

// Recorder accepts fire-and-forget build log records. Implementations must
// not block and swallow their own failures.
type Recorder interface {
	Record(event string, data map[string]any)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(event string, data map[string]any)

// Record calls f.
func (f RecorderFunc) Record(event string, data map[string]any) { f(event, data) }

type nopRecorder struct{}

func (nopRecorder) Record(string, map[string]any) {}
