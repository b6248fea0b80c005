// ABOUTME: The build orchestrator: turns a user request into a committed document via instant edit or model stream.
// ABOUTME: Drives extraction per delta, recovers usable partials, and keeps history, issues, and build context current.

package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/2389-research/buildr/buildctx"
	"github.com/2389-research/buildr/extract"
	"github.com/2389-research/buildr/history"
	"github.com/2389-research/buildr/instantedit"
	"github.com/2389-research/buildr/stream"
	"github.com/2389-research/buildr/validate"
)

// ErrEmptyRequest is returned by Submit for a blank request.
var ErrEmptyRequest = errors.New("request is empty")

// errGenerationFailed is the failure for a response too short to use.
var errGenerationFailed = errors.New("generation failed")

// Outcome classifies how a request settled.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeInstant Outcome = "instant"
	OutcomeReply   Outcome = "reply"
	OutcomeFailed  Outcome = "failed"
)

// Result describes a settled request.
type Result struct {
	Outcome  Outcome          `json:"outcome"`
	Document string           `json:"document,omitempty"`
	Message  *Message         `json:"message,omitempty"`
	Issues   []validate.Issue `json:"issues,omitempty"`
	Failure  *Failure         `json:"failure,omitempty"`
}

// Thresholds tunes recovery and instant-edit heuristics.
type Thresholds struct {
	// PartialMinChars is the length a partial must exceed to be kept when a
	// stream ends without a complete document.
	PartialMinChars int
	// FailureMinChars is the response length below which a build without
	// usable HTML is a failure rather than a conversational reply.
	FailureMinChars int
	// Saturation is the instant-edit recolor cut-off.
	Saturation float64
}

// DefaultThresholds returns the stock heuristics.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PartialMinChars: 500,
		FailureMinChars: 100,
		Saturation:      instantedit.DefaultSaturationThreshold,
	}
}

// SubmitOptions carry per-request generation flags.
type SubmitOptions struct {
	PlanMode         bool
	PremiumMode      bool
	TemplateCategory string
}

// Snapshot is a consistent copy of orchestrator state.
type Snapshot struct {
	State    State            `json:"state"`
	Document string           `json:"document"`
	Preview  string           `json:"preview"`
	Status   Status           `json:"status"`
	Issues   []validate.Issue `json:"issues"`
	Context  buildctx.Context `json:"context"`
	Messages []Message        `json:"messages"`
	Failure  *Failure         `json:"failure,omitempty"`
	CanUndo  bool             `json:"canUndo"`
	CanRedo  bool             `json:"canRedo"`
}

// pendingRequest is the exact payload a retry replays.
type pendingRequest struct {
	req  GenerateRequest
	text string
	opts SubmitOptions
}

// Orchestrator owns one site's document, conversation, and history. All
// mutations are serialized; the stream read happens with the lock released.
type Orchestrator struct {
	mu sync.Mutex

	gen        Generator
	matcher    *instantedit.Matcher
	history    *history.History
	thresholds Thresholds
	observers  []Observer
	recorder   Recorder
	logger     zerolog.Logger
	now        func() time.Time

	state       State
	doc         string
	preview     string
	status      Status
	issues      []validate.Issue
	bctx        buildctx.Context
	messages    []Message
	failure     *Failure
	retry       *pendingRequest
	placeholder string

	events  []Event
	restore *history.State
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger for build diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithObserver registers an event observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

// WithRecorder sets the fire-and-forget log recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithThresholds overrides the recovery heuristics.
func WithThresholds(t Thresholds) Option {
	return func(o *Orchestrator) { o.thresholds = t }
}

// WithHistoryLimit sets how many snapshots undo can reach.
func WithHistoryLimit(n int) Option {
	return func(o *Orchestrator) { o.history = history.New(n) }
}

// WithHistory restores saved undo/redo snapshots; the current snapshot
// becomes the document unless WithDocument supplies a newer one.
func WithHistory(s history.State) Option {
	return func(o *Orchestrator) { o.restore = &s }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithBuildContext seeds the project type and features used in prompts.
func WithBuildContext(c buildctx.Context) Option {
	return func(o *Orchestrator) { o.bctx = c }
}

// WithDocument starts from an existing document, e.g. a saved project.
func WithDocument(doc string) Option {
	return func(o *Orchestrator) { o.doc = doc }
}

// WithMessages restores a saved conversation.
func WithMessages(msgs []Message) Option {
	return func(o *Orchestrator) { o.messages = append([]Message(nil), msgs...) }
}

// NewOrchestrator creates an idle orchestrator streaming from gen.
func NewOrchestrator(gen Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gen:        gen,
		thresholds: DefaultThresholds(),
		recorder:   nopRecorder{},
		logger:     zerolog.Nop(),
		now:        time.Now,
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.history == nil {
		o.history = history.New(history.DefaultLimit)
	}
	if o.restore != nil {
		o.history.Restore(*o.restore)
		if cur, ok := o.history.Current(); ok && o.doc == "" {
			o.doc = cur
		}
		o.restore = nil
	}
	o.matcher = instantedit.NewMatcher(o.thresholds.Saturation)
	if o.doc != "" {
		o.preview = o.doc
		o.issues = validate.Validate(o.doc)
		o.bctx.Sections = buildctx.DetectSections(o.doc)
		o.history.Push(o.doc)
	}
	return o
}

// Submit handles a user request. It blocks until the request settles and
// reports the outcome in the Result; the error is reserved for ErrBusy,
// ErrEmptyRequest, and state-machine violations.
func (o *Orchestrator) Submit(ctx context.Context, text string, opts SubmitOptions) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyRequest
	}

	o.mu.Lock()
	if o.state.Busy() {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	if err := o.settle(); err != nil {
		o.unlock()
		return nil, err
	}
	o.placeholder = ""
	o.retry = nil
	o.failure = nil
	o.appendMessage(Message{Role: RoleUser, Content: text})

	if o.doc != "" && !opts.PlanMode {
		if out, ok := o.matcher.TryApply(text, o.doc); ok {
			res, err := o.finishInstant(text, out)
			o.unlock()
			return res, err
		}
	}

	p := &pendingRequest{req: o.request(opts), text: text, opts: opts}
	if err := o.move(ActionSubmit); err != nil {
		o.unlock()
		return nil, err
	}
	o.retry = p
	o.recorder.Record(LogBuildStart, map[string]any{
		"followUp": p.req.IsFollowUp, "planMode": opts.PlanMode, "promptChars": len(text),
	})
	o.unlock()

	return o.run(ctx, p), nil
}

// Retry replays the last failed request exactly.
func (o *Orchestrator) Retry(ctx context.Context) (*Result, error) {
	o.mu.Lock()
	if o.state.Busy() {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	if o.state != StateFailed || o.retry == nil {
		o.mu.Unlock()
		return nil, ErrNothingToRetry
	}
	if err := o.move(ActionRetry); err != nil {
		o.unlock()
		return nil, err
	}
	p := o.retry
	o.failure = nil
	o.recorder.Record(LogBuildStart, map[string]any{"retry": true, "followUp": p.req.IsFollowUp})
	o.unlock()

	return o.run(ctx, p), nil
}

// Reset returns a settled orchestrator to Idle, dismissing any failure.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.unlock()
	if o.state.Busy() {
		return ErrBusy
	}
	return o.settle()
}

// Undo steps the document back one snapshot.
func (o *Orchestrator) Undo() (bool, error) {
	return o.step((*history.History).Undo)
}

// Redo steps the document forward one snapshot.
func (o *Orchestrator) Redo() (bool, error) {
	return o.step((*history.History).Redo)
}

func (o *Orchestrator) step(fn func(*history.History) (string, bool)) (bool, error) {
	o.mu.Lock()
	defer o.unlock()
	if o.state.Busy() {
		return false, ErrBusy
	}
	doc, ok := fn(o.history)
	if !ok {
		return false, nil
	}
	o.doc = doc
	o.preview = doc
	o.issues = validate.Validate(doc)
	o.bctx.Sections = buildctx.DetectSections(doc)
	o.emit(Event{Kind: EventDocumentCommitted, Document: doc, Issues: o.issues})
	return true, nil
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	var failure *Failure
	if o.failure != nil {
		f := *o.failure
		failure = &f
	}
	return Snapshot{
		State:    o.state,
		Document: o.doc,
		Preview:  o.preview,
		Status:   o.status,
		Issues:   append([]validate.Issue(nil), o.issues...),
		Context:  o.bctx,
		Messages: append([]Message(nil), o.messages...),
		Failure:  failure,
		CanUndo:  o.history.CanUndo(),
		CanRedo:  o.history.CanRedo(),
	}
}

// History returns a copy of the undo/redo snapshots.
func (o *Orchestrator) History() history.State {
	return o.history.State()
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Document returns the committed document.
func (o *Orchestrator) Document() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.doc
}

// run streams one request to completion. It is entered in Submitting with
// the lock released.
func (o *Orchestrator) run(ctx context.Context, p *pendingRequest) *Result {
	body, err := o.gen.Generate(ctx, p.req)
	if err != nil {
		o.mu.Lock()
		defer o.unlock()
		return o.fail(err)
	}
	defer body.Close()

	o.mu.Lock()
	if err := o.move(ActionAccepted); err != nil {
		o.logger.Error().Err(err).Msg("stream accepted in unexpected state")
	}
	o.setStatus("")
	o.unlock()

	dec := stream.NewDecoder(body, stream.WithLogger(o.logger), stream.WithSkipFunc(func(line string, err error) {
		o.recorder.Record(LogStreamError, map[string]any{"kind": "decode", "error": err.Error(), "bytes": len(line)})
	}))

	var lastPartial string
	var streamErr error
	for {
		_, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			streamErr = err
			break
		}
		full := dec.Text()
		o.mu.Lock()
		if !p.opts.PlanMode {
			if partial, ok := extract.Partial(full); ok && partial != lastPartial {
				lastPartial = partial
				o.preview = partial
				o.emit(Event{Kind: EventPreviewUpdated, Preview: partial})
			}
		}
		o.setStatus(full)
		o.unlock()
	}

	full := dec.Text()
	o.mu.Lock()
	defer o.unlock()

	if streamErr != nil {
		o.recorder.Record(LogStreamError, map[string]any{"error": streamErr.Error(), "chars": charCount(full)})
		if charCount(lastPartial) > o.thresholds.PartialMinChars {
			return o.finishPartial(p, full, lastPartial)
		}
		return o.fail(streamErr)
	}

	if p.opts.PlanMode {
		if strings.TrimSpace(full) == "" {
			return o.fail(errGenerationFailed)
		}
		return o.finishReply(full)
	}
	if doc, ok := extract.Complete(full); ok {
		return o.finishSuccess(p, full, doc)
	}
	if charCount(lastPartial) > o.thresholds.PartialMinChars {
		return o.finishPartial(p, full, lastPartial)
	}
	if charCount(full) < o.thresholds.FailureMinChars {
		return o.fail(errGenerationFailed)
	}
	return o.finishReply(full)
}

func (o *Orchestrator) finishSuccess(p *pendingRequest, full, doc string) *Result {
	content := extract.Prose(full)
	if content == "" {
		content = "Here's your updated site."
		if !p.req.IsFollowUp {
			content = "Here's your site."
		}
	}
	msg := o.commit(p.text, doc, Message{Role: RoleAssistant, Content: content, Code: doc})
	_ = o.move(ActionSucceed)
	o.recorder.Record(LogBuildSuccess, map[string]any{
		"chars": charCount(doc), "issues": len(o.issues), "sections": len(o.bctx.Sections),
	})
	return &Result{Outcome: OutcomeSuccess, Document: doc, Message: msg, Issues: o.issues}
}

func (o *Orchestrator) finishPartial(p *pendingRequest, full, partial string) *Result {
	content := extract.Prose(full)
	note := "The response was cut off, so I kept the part that was generated. Ask me to finish the page if anything is missing."
	if content == "" {
		content = note
	} else {
		content += "\n\n" + note
	}
	msg := o.commit(p.text, partial, Message{Role: RoleAssistant, Content: content, Code: partial, Partial: true})
	_ = o.move(ActionSucceed)
	o.recorder.Record(LogRecoveryPartial, map[string]any{"chars": charCount(partial), "received": charCount(full)})
	o.logger.Warn().Int("chars", charCount(partial)).Msg("committed partial document")
	return &Result{Outcome: OutcomePartial, Document: partial, Message: msg, Issues: o.issues}
}

func (o *Orchestrator) finishInstant(text, doc string) (*Result, error) {
	if err := o.move(ActionInstant); err != nil {
		return nil, err
	}
	target, _ := o.matcher.Match(text)
	msg := o.commit(text, doc, Message{
		Role:    RoleAssistant,
		Content: fmt.Sprintf("Done! I changed the colors to %s.", target.Name),
		Code:    doc,
	})
	o.recorder.Record(LogInstantEdit, map[string]any{"color": target.Name})
	return &Result{Outcome: OutcomeInstant, Document: doc, Message: msg, Issues: o.issues}, nil
}

// finishReply commits the response as conversation only; the document is untouched.
func (o *Orchestrator) finishReply(full string) *Result {
	msg := o.appendAssistant(Message{Role: RoleAssistant, Content: strings.TrimSpace(full)})
	o.preview = o.doc
	_ = o.move(ActionSucceed)
	return &Result{Outcome: OutcomeReply, Message: msg}
}

// commit installs doc as the current document and records the assistant message.
func (o *Orchestrator) commit(request, doc string, msg Message) *Message {
	o.doc = doc
	o.preview = doc
	o.issues = validate.Validate(doc)
	o.bctx = buildctx.Update(o.bctx, doc, request, o.now())
	o.history.Push(doc)
	o.emit(Event{Kind: EventDocumentCommitted, Document: doc, Issues: o.issues})
	return o.appendAssistant(msg)
}

func (o *Orchestrator) fail(err error) *Result {
	f := &Failure{Message: failureMessage(err), Retryable: retryable(err)}
	if mErr := o.move(ActionFail); mErr != nil {
		o.logger.Error().Err(mErr).Msg("failure in unexpected state")
	}
	o.failure = f
	o.preview = o.doc
	o.logger.Warn().Err(err).Bool("retryable", f.Retryable).Msg("build failed")
	o.recorder.Record(LogBuildError, map[string]any{"error": f.Message, "retryable": f.Retryable})

	content := "Sorry, something went wrong: " + f.Message
	var msg *Message
	if idx := o.indexOf(o.placeholder); idx >= 0 {
		o.messages[idx].Content = content
		o.messages[idx].CreatedAt = o.now()
		m := o.messages[idx]
		msg = &m
		o.emit(Event{Kind: EventMessageAppended, Message: msg, Replaces: m.ID})
	} else {
		msg = o.appendMessage(Message{Role: RoleAssistant, Content: content, Failed: true})
		o.placeholder = msg.ID
	}
	o.emit(Event{Kind: EventFailed, Failure: f})
	return &Result{Outcome: OutcomeFailed, Failure: f, Message: msg}
}

// appendAssistant adds msg, replacing the failed placeholder of a retried request.
func (o *Orchestrator) appendAssistant(msg Message) *Message {
	idx := o.indexOf(o.placeholder)
	o.placeholder = ""
	if idx < 0 {
		return o.appendMessage(msg)
	}
	old := o.messages[idx].ID
	msg.ID = ulid.Make().String()
	msg.CreatedAt = o.now()
	o.messages[idx] = msg
	o.emit(Event{Kind: EventMessageAppended, Message: &msg, Replaces: old})
	return &msg
}

func (o *Orchestrator) appendMessage(msg Message) *Message {
	msg.ID = ulid.Make().String()
	msg.CreatedAt = o.now()
	o.messages = append(o.messages, msg)
	o.emit(Event{Kind: EventMessageAppended, Message: &msg})
	return &msg
}

func (o *Orchestrator) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range o.messages {
		if o.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// request assembles the generate body from the conversation so far.
func (o *Orchestrator) request(opts SubmitOptions) GenerateRequest {
	followUp := o.doc != ""
	var msgs []ChatMessage
	for _, m := range o.messages {
		if m.Failed {
			continue
		}
		msgs = append(msgs, ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	if followUp && len(msgs) > 0 {
		if block := o.bctx.PromptBlock(); block != "" {
			last := &msgs[len(msgs)-1]
			last.Content += "\n\n" + block
		}
	}
	req := GenerateRequest{
		Messages:         msgs,
		TemplateCategory: opts.TemplateCategory,
		PremiumMode:      opts.PremiumMode,
		IsFollowUp:       followUp,
		IsPlanMode:       opts.PlanMode,
	}
	if followUp {
		req.CurrentCode = o.doc
	}
	return req
}

// settle moves a Completed or Failed orchestrator back to Idle.
func (o *Orchestrator) settle() error {
	if o.state == StateCompleted || o.state == StateFailed {
		if err := o.move(ActionReset); err != nil {
			return err
		}
		o.failure = nil
	}
	return nil
}

func (o *Orchestrator) move(a Action) error {
	next, err := transition(o.state, a)
	if err != nil {
		return err
	}
	o.state = next
	o.emit(Event{Kind: EventStateChanged, State: next})
	return nil
}

func (o *Orchestrator) setStatus(full string) {
	o.status = Status{Stage: stageFor(full), Chars: charCount(full)}
	st := o.status
	o.emit(Event{Kind: EventStatusUpdated, Status: &st})
}

// emit queues ev for delivery once the lock is released.
func (o *Orchestrator) emit(ev Event) {
	ev.At = o.now()
	o.events = append(o.events, ev)
}

// unlock releases the lock and then delivers queued events in order.
func (o *Orchestrator) unlock() {
	evs := o.events
	o.events = nil
	o.mu.Unlock()
	for _, ev := range evs {
		for _, obs := range o.observers {
			obs(ev)
		}
	}
}

func charCount(s string) int { return utf8.RuneCountInString(s) }

func failureMessage(err error) string {
	var httpErr *HTTPError
	var streamErr *stream.StreamError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Message
	case errors.As(err, &streamErr):
		return streamErr.Message
	case errors.Is(err, context.DeadlineExceeded):
		return "the request timed out"
	default:
		return err.Error()
	}
}

func retryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	return !errors.Is(err, context.Canceled)
}
