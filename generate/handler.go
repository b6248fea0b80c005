// ABOUTME: HTTP handler for POST /api/generate, streaming Buildr's SSE wire format to the browser.
// ABOUTME: Failures before the first byte are answered with a non-2xx JSON {"error"} body.

package generate

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/2389-research/buildr/build"
)

const maxRequestBody = 4 << 20

// Handler serves the generate endpoint.
type Handler struct {
	gen build.Generator
}

// NewHandler wraps a generator, usually a *Service.
func NewHandler(gen build.Generator) *Handler {
	return &Handler{gen: gen}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req build.GenerateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	body, err := h.gen.Generate(r.Context(), req)
	if err != nil {
		var httpErr *build.HTTPError
		if errors.As(err, &httpErr) {
			writeError(w, httpErr.StatusCode, httpErr.Message)
			return
		}
		writeError(w, StatusFor(err), err.Error())
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)
	buf := make([]byte, 4096)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if readErr != nil {
			return
		}
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
