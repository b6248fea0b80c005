// ABOUTME: Workspace handlers: submit, retry, undo/redo, state, the SSE event stream, the sandboxed
// ABOUTME: preview with its error socket, the transcript, and publishing the committed site.
package web

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2389-research/buildr/auth"
	"github.com/2389-research/buildr/build"
	"github.com/2389-research/buildr/preview"
	"github.com/2389-research/buildr/workspace"
)

const (
	// SessionHeader carries the caller's session ID; the sid query
	// parameter is the fallback for EventSource and iframes.
	SessionHeader = "X-Buildr-Session"

	maxBuildBody = 64 << 10
	// buildTimeout bounds a build that outlives its HTTP request.
	buildTimeout = 10 * time.Minute
	// sseHeartbeat keeps proxies from closing idle event streams.
	sseHeartbeat = 15 * time.Second
)

// BuildRequest is the body of POST /build.
type BuildRequest struct {
	Text             string `json:"text"`
	PlanMode         bool   `json:"planMode"`
	PremiumMode      bool   `json:"premiumMode"`
	TemplateCategory string `json:"templateCategory"`
}

// StateResponse is the body of GET /state.
type StateResponse struct {
	build.Snapshot
	SessionID string               `json:"sessionId"`
	Errors    []preview.Notification `json:"errors"`
}

func sessionID(r *http.Request) string {
	if sid := strings.TrimSpace(r.Header.Get(SessionHeader)); sid != "" {
		return sid
	}
	return strings.TrimSpace(r.URL.Query().Get("sid"))
}

// workspace opens the workspace for the project in the URL.
func (s *Server) workspace(w http.ResponseWriter, r *http.Request) (*workspace.Workspace, bool) {
	ws, err := s.cfg.Workspaces.Open(r.Context(), owner(r), chi.URLParam(r, "projectID"), sessionID(r))
	if err != nil {
		s.respondError(w, r, err)
		return nil, false
	}
	return ws, true
}

// handleBuild runs one request to completion and returns its result. The
// build is detached from the request: a dropped connection does not
// abandon a response that is already streaming.
func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	var req BuildRequest
	if !decodeJSON(w, r, maxBuildBody, &req) {
		return
	}
	opts := build.SubmitOptions{
		PlanMode:         req.PlanMode,
		PremiumMode:      req.PremiumMode,
		TemplateCategory: strings.TrimSpace(req.TemplateCategory),
	}
	if opts.TemplateCategory == "" {
		opts.TemplateCategory = ws.Orchestrator().Snapshot().Context.ProjectType
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), buildTimeout)
	defer cancel()
	res, err := ws.Submit(ctx, req.Text, opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), buildTimeout)
	defer cancel()
	res, err := ws.Retry(ctx)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.step(w, r, (*build.Orchestrator).Undo)
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	s.step(w, r, (*build.Orchestrator).Redo)
}

// step applies undo or redo. Reaching either end of the history is not an
// error; the returned snapshot shows nothing moved.
func (s *Server) step(w http.ResponseWriter, r *http.Request, fn func(*build.Orchestrator) (bool, error)) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	moved, err := fn(ws.Orchestrator())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"moved": moved,
		"state": ws.Orchestrator().Snapshot(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, StateResponse{
		Snapshot:  ws.Orchestrator().Snapshot(),
		SessionID: ws.Session().ID(),
		Errors:    ws.Errors().Entries(),
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	msgs := ws.Orchestrator().Snapshot().Messages
	if msgs == nil {
		msgs = []build.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// handleTranscript renders the conversation as a readable HTML page.
func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	p, err := s.ownedProject(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	data := s.tmpl.Transcript(p.Name, ws.Orchestrator().Snapshot().Messages)
	if err := s.tmpl.Render(w, "transcript.html", data); err != nil {
		s.logger.Error().Err(err).Msg("rendering transcript")
	}
}

// handleEvents streams workspace events over SSE: the coalesced history
// first, then live events until the client or the workspace goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	history, events, unsubscribe := ws.Events().SubscribeWithHistory()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for _, ev := range history {
		if _, err := fmt.Fprint(w, ev.Format()); err != nil {
			return
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if _, err := fmt.Fprint(w, ev.Format()); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ":heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handlePreview serves the committed document, or the streaming preview
// with ?live=1, inside the sandbox with the error reporter injected.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	snap := ws.Orchestrator().Snapshot()
	doc := snap.Document
	if r.URL.Query().Get("live") == "1" && snap.Preview != "" {
		doc = snap.Preview
	}
	if doc != "" {
		doc = preview.InjectReporter(doc, previewSocketURL(r, ws.Session().ID()))
	}
	preview.ServeDocument(w, doc)
}

// previewSocketURL is the absolute websocket URL the preview reports to.
// The sandboxed frame has an opaque origin and sends no cookies, so the
// token and session travel in the query.
func previewSocketURL(r *http.Request, sid string) string {
	scheme := "ws"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "wss"
	}
	q := url.Values{}
	q.Set("sid", sid)
	if token := auth.TokenFromRequest(r); token != "" {
		q.Set(auth.QueryParam, token)
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     strings.TrimSuffix(r.URL.Path, "/") + "/ws",
		RawQuery: q.Encode(),
	}
	return u.String()
}

func (s *Server) handlePreviewSocket(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	logger := s.logger.With().Str("project", ws.ProjectID).Logger()
	preview.NotificationHandler(ws.ReportPreview, logger)(w, r)
}

func (s *Server) handlePreviewErrors(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ws.Errors().Entries())
}

func (s *Server) handlePreviewErrorsClear(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	ws.Errors().Clear()
	w.WriteHeader(http.StatusNoContent)
}

// handlePublish uploads the committed document to object storage.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	if s.cfg.Publisher == nil {
		s.recordPublish("disabled")
		writeError(w, http.StatusServiceUnavailable, "publishing is not configured")
		return
	}
	res, err := s.cfg.Publisher.Publish(r.Context(), ws.ProjectID, ws.Orchestrator().Document())
	if err != nil {
		s.recordPublish("error")
		s.respondError(w, r, err)
		return
	}
	s.recordPublish("ok")
	s.logger.Info().Str("project", ws.ProjectID).Str("url", res.URL).Int64("bytes", res.Size).Msg("site published")
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) recordPublish(result string) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordPublish(result)
	}
}
