// ABOUTME: Session handlers: start a session, read recovery state, read and write snapshots, and reset.
// ABOUTME: Session IDs are unguessable UUIDs; the project behind a snapshot is still owner-checked on open.
package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/2389-research/buildr/session"
)

const maxSnapshotBody = 8 << 20

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	sess := session.New(s.now())
	writeJSON(w, http.StatusCreated, map[string]any{
		"sessionId": sess.ID(),
		"startedAt": sess.StartedAt(),
	})
}

func (s *Server) handleRecovery(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sessionID")
	rec, err := s.cfg.Sessions.LoadRecovery(sid)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if rec.ProjectID != "" {
		if p, err := s.cfg.Projects.Get(r.Context(), rec.ProjectID); err != nil || p.Owner != owner(r) {
			s.respondError(w, r, session.ErrNotFound)
			return
		}
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSnapshotGet(w http.ResponseWriter, r *http.Request) {
	snap, err := s.cfg.Sessions.LoadSnapshot(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSnapshotPut(w http.ResponseWriter, r *http.Request) {
	var snap session.Snapshot
	if !decodeJSON(w, r, maxSnapshotBody, &snap) {
		return
	}
	if err := s.cfg.Sessions.SaveSnapshot(chi.URLParam(r, "sessionID"), snap); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSessionReset discards a session's stored state and issues a new ID.
// With ?project=, that project's open workspace is closed so reopening it
// under the new ID starts a fresh conversation from the saved site.
func (s *Server) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sessionID")
	if err := s.cfg.Sessions.Delete(sid); err != nil {
		s.respondError(w, r, err)
		return
	}
	if id := r.URL.Query().Get("project"); id != "" {
		if _, ok := s.cfg.Workspaces.Get(owner(r), id); ok {
			if err := s.cfg.Workspaces.Evict(id); err != nil {
				s.logger.Info().Str("project", id).Msg("workspace busy; keeping it open across session reset")
			}
		}
	}
	next := session.New(s.now())
	s.logger.Info().Str("previous", sid).Str("session", next.ID()).Msg("session reset")
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": next.ID(),
		"startedAt": next.StartedAt(),
	})
}
