// ABOUTME: HTTP handler for GET /api/images/{source}.
// ABOUTME: Always answers 200 with provider images or placeholders.

package images

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Handler serves image searches. Mount it on a route with a {source} param.
func Handler(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, _ := strconv.Atoi(r.URL.Query().Get("count"))
		res := s.Search(r.Context(), chi.URLParam(r, "source"), r.URL.Query().Get("query"), count)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=300")
		_ = json.NewEncoder(w).Encode(res)
	}
}
