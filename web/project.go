// ABOUTME: Project CRUD handlers: list, create from the questionnaire, fetch, save code, and delete.
// ABOUTME: Every handler is scoped to the authenticated owner; foreign projects look missing.
package web

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/2389-research/buildr/auth"
	"github.com/2389-research/buildr/project"
)

const (
	maxAnswersBody = 64 << 10
	maxCodeBody    = 4 << 20
)

// owner returns the authenticated owner. Routes mounted behind
// auth.Middleware always have one.
func owner(r *http.Request) string {
	o, _ := auth.Owner(r.Context())
	return o
}

// ownedProject loads the project named in the URL if owner holds it.
func (s *Server) ownedProject(r *http.Request) (project.Project, error) {
	p, err := s.cfg.Projects.Get(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		return project.Project{}, err
	}
	if p.Owner != owner(r) {
		return project.Project{}, project.ErrNotFound
	}
	return p, nil
}

func (s *Server) handleProjectList(w http.ResponseWriter, r *http.Request) {
	ps, err := s.cfg.Projects.List(r.Context(), owner(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if ps == nil {
		ps = []project.Project{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (s *Server) handleProjectCreate(w http.ResponseWriter, r *http.Request) {
	var answers project.Answers
	if !decodeJSON(w, r, maxAnswersBody, &answers) {
		return
	}
	p, err := project.FromAnswers(owner(r), answers, s.now().UTC())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	p, err = s.cfg.Projects.Create(r.Context(), p)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.logger.Info().Str("project", p.ID).Str("owner", p.Owner).Msg("project created")
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleProjectGet(w http.ResponseWriter, r *http.Request) {
	p, err := s.ownedProject(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	// An open workspace may hold a newer commit than the debounced save.
	if ws, ok := s.cfg.Workspaces.Get(p.Owner, p.ID); ok {
		if doc := ws.Orchestrator().Document(); doc != "" {
			p.Code = doc
		}
	}
	writeJSON(w, http.StatusOK, p)
}

// handleProjectUpdateCode replaces the saved document. The open workspace
// is discarded so the next request loads the new code; while it is
// building the update is refused with 409.
func (s *Server) handleProjectUpdateCode(w http.ResponseWriter, r *http.Request) {
	p, err := s.ownedProject(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var body struct {
		Code string `json:"code"`
	}
	if !decodeJSON(w, r, maxCodeBody, &body) {
		return
	}
	if strings.TrimSpace(body.Code) == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if err := s.cfg.Workspaces.Discard(p.ID); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.cfg.Projects.UpdateCode(r.Context(), p.ID, body.Code); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProjectDelete(w http.ResponseWriter, r *http.Request) {
	p, err := s.ownedProject(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.cfg.Workspaces.Discard(p.ID); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.cfg.Projects.Delete(r.Context(), p.ID); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.logger.Info().Str("project", p.ID).Msg("project deleted")
	w.WriteHeader(http.StatusNoContent)
}
