// ABOUTME: Buildr HTTP server: generation proxy, logging, images, projects, live workspaces, and sessions
// ABOUTME: behind a single chi router, with graceful shutdown that flushes pending saves.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/2389-research/buildr/auth"
	"github.com/2389-research/buildr/build"
	"github.com/2389-research/buildr/eventlog"
	"github.com/2389-research/buildr/generate"
	"github.com/2389-research/buildr/images"
	"github.com/2389-research/buildr/metrics"
	"github.com/2389-research/buildr/project"
	"github.com/2389-research/buildr/publish"
	"github.com/2389-research/buildr/session"
	"github.com/2389-research/buildr/workspace"
)

// EventLog is the event store behind /api/log and /api/debug/logs.
type EventLog interface {
	eventlog.Sink
	eventlog.Querier
}

// ServerConfig holds the collaborators of the web server. Generator,
// Events, Images, Publisher, Sessions, and Metrics are optional.
type ServerConfig struct {
	Addr        string // listen address (default: "127.0.0.1:2389")
	Logger      zerolog.Logger
	Auth        *auth.Authenticator
	Projects    project.Store
	Workspaces  *workspace.Manager
	Sessions    *session.Store
	Generator   build.Generator
	Events      EventLog
	DebugSecret string
	Images      *images.Service
	Publisher   *publish.Publisher
	Metrics     *metrics.Metrics
}

// Server is the Buildr HTTP server.
type Server struct {
	cfg    ServerConfig
	logger zerolog.Logger
	router chi.Router
	tmpl   *TemplateEngine
	now    func() time.Time
}

// NewServer validates cfg and sets up routing.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:2389"
	}
	if cfg.Auth == nil {
		return nil, errors.New("web: Auth must not be nil")
	}
	if cfg.Projects == nil || cfg.Workspaces == nil {
		return nil, errors.New("web: Projects and Workspaces must not be nil")
	}
	tmpl, err := NewTemplateEngine()
	if err != nil {
		return nil, err
	}
	s := &Server{cfg: cfg, logger: cfg.Logger, tmpl: tmpl, now: time.Now}
	s.router = s.buildRouter()
	return s, nil
}

// ServeHTTP delegates to the chi router, satisfying http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then drains connections and
// flushes workspaces. Read timeouts guard against slow clients. There is no
// write timeout: event streams stay open indefinitely and a build response
// is bounded by buildTimeout instead.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	// Event streams never end on their own, so close subscriptions first.
	wsErr := s.cfg.Workspaces.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		return errors.Join(fmt.Errorf("shutdown: %w", err), wsErr)
	}
	return wsErr
}

// buildRouter constructs the chi router with all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger, s.cfg.Metrics))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.cfg.Metrics != nil {
		r.Handle("/metrics", s.cfg.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if s.cfg.Events != nil {
			r.Post("/log", eventlog.IngestHandler(s.cfg.Events, s.logger))
			r.Get("/debug/logs", eventlog.DebugHandler(s.cfg.Events, s.cfg.DebugSecret, time.Now))
		}
		if s.cfg.Images != nil {
			r.Get("/images/{source}", images.Handler(s.cfg.Images))
		}

		r.Group(func(r chi.Router) {
			r.Use(s.cfg.Auth.Middleware)

			if s.cfg.Generator != nil {
				r.Post("/generate", generate.NewHandler(s.cfg.Generator).ServeHTTP)
			}

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", s.handleProjectList)
				r.Post("/", s.handleProjectCreate)

				r.Route("/{projectID}", func(r chi.Router) {
					r.Get("/", s.handleProjectGet)
					r.Put("/code", s.handleProjectUpdateCode)
					r.Delete("/", s.handleProjectDelete)

					r.Post("/build", s.handleBuild)
					r.Post("/retry", s.handleRetry)
					r.Post("/undo", s.handleUndo)
					r.Post("/redo", s.handleRedo)
					r.Get("/state", s.handleState)
					r.Get("/messages", s.handleMessages)
					r.Get("/transcript", s.handleTranscript)
					r.Get("/events", s.handleEvents)
					r.Get("/preview", s.handlePreview)
					r.Get("/preview/ws", s.handlePreviewSocket)
					r.Get("/preview/errors", s.handlePreviewErrors)
					r.Delete("/preview/errors", s.handlePreviewErrorsClear)
					r.Post("/publish", s.handlePublish)
				})
			})

			if s.cfg.Sessions != nil {
				r.Route("/sessions", func(r chi.Router) {
					r.Post("/", s.handleSessionStart)
					r.Route("/{sessionID}", func(r chi.Router) {
						r.Get("/recovery", s.handleRecovery)
						r.Get("/snapshot", s.handleSnapshotGet)
						r.Put("/snapshot", s.handleSnapshotPut)
						r.Delete("/", s.handleSessionReset)
					})
				})
			}
		})
	})

	return r
}

// handleHealth returns a JSON health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"workspaces": s.cfg.Workspaces.Len(),
		"publishing": s.cfg.Publisher != nil,
		"auth":       s.cfg.Auth.Enabled(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a size-capped JSON body into v, answering 413 or 400
// itself on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, project.ErrNotFound), errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, project.ErrInvalid), errors.Is(err, session.ErrInvalidID),
		errors.Is(err, build.ErrEmptyRequest), errors.Is(err, publish.ErrEmptyDocument),
		errors.Is(err, publish.ErrInvalidProject):
		return http.StatusBadRequest
	case errors.Is(err, build.ErrBusy), errors.Is(err, build.ErrNothingToRetry),
		errors.Is(err, build.ErrInvalidTransition), errors.Is(err, workspace.ErrClosed):
		return http.StatusConflict
	case errors.Is(err, publish.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status, hiding internal details.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}
