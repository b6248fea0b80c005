// ABOUTME: HTTP handlers for the log ingest endpoint and the secret-guarded debug log query.
// ABOUTME: Ingest always answers 204; the debug query 404s when disabled and 403s without the secret.

package eventlog

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultMinutes = 60
	maxMinutes     = 24 * 60
	maxLogBody     = 64 << 10
)

// Querier is the read side used by the debug handler. *Store satisfies it.
type Querier interface {
	Query(ctx context.Context, f Filter) ([]Entry, error)
	Counts(ctx context.Context, since time.Time) (map[string]int, error)
}

type logRequest struct {
	SessionID string          `json:"sessionId"`
	Category  string          `json:"category"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
}

// IngestHandler accepts client log events. It answers 204 whatever happens
// so logging can never break the client.
func IngestHandler(sink Sink, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer w.WriteHeader(http.StatusNoContent)

		var req logRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxLogBody)).Decode(&req); err != nil {
			logger.Debug().Err(err).Msg("ignoring malformed log event")
			return
		}
		if req.Event == "" {
			return
		}
		if req.Category == "" {
			req.Category = "client"
		}
		e := Entry{SessionID: req.SessionID, Category: req.Category, Event: req.Event, CreatedAt: time.Now()}
		if len(req.Data) > 0 && json.Valid(req.Data) && string(req.Data) != "null" {
			e.Data = req.Data
		}
		if err := sink.Append(r.Context(), e); err != nil {
			logger.Warn().Err(err).Str("event", req.Event).Msg("event log write failed")
		}
	}
}

// DebugResponse is the body of a debug log query.
type DebugResponse struct {
	Since   time.Time      `json:"since"`
	Minutes int            `json:"minutes"`
	Counts  map[string]int `json:"counts"`
	Entries []Entry        `json:"entries"`
}

// DebugHandler serves recent entries. With an empty secret the endpoint
// does not exist.
func DebugHandler(q Querier, secret string, now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if secret == "" {
			http.NotFound(w, r)
			return
		}
		given := r.URL.Query().Get("secret")
		if given == "" {
			given = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
			return
		}

		minutes := defaultMinutes
		if v := r.URL.Query().Get("minutes"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "minutes must be a positive integer"})
				return
			}
			minutes = min(n, maxMinutes)
		}
		since := now().Add(-time.Duration(minutes) * time.Minute)

		entries, err := q.Query(r.Context(), Filter{Since: since, Category: r.URL.Query().Get("category")})
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		counts, err := q.Counts(r.Context(), since)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, DebugResponse{Since: since, Minutes: minutes, Counts: counts, Entries: entries})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
