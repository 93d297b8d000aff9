package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"subvertnews/internal/reader"
)

var serverStartTime = time.Now()

// HealthResponse reports basic liveness for the /health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(serverStartTime).String(),
	})
}

// handleToday serves GET /today: the "today" rolling window, no day or
// headline forced.
func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	s.serveSelection(w, r, reader.Query{})
}

// handleDay serves GET /{day}.
func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	day := chi.URLParam(r, "day")
	s.serveSelection(w, r, reader.Query{Day: day})
}

// handleDayHeadline serves GET /{day}/{headline-slug}: forces the named
// headline into slot 0 with ShowOriginal suppressed.
func (s *Server) handleDayHeadline(w http.ResponseWriter, r *http.Request) {
	day := chi.URLParam(r, "day")
	slug := chi.URLParam(r, "headlineSlug")
	s.serveSelection(w, r, reader.Query{Day: day, HeadlineSlug: slug})
}

// serveSelection fills in the q/seen query parameters shared by every
// route and runs the Reader Selector.
func (s *Server) serveSelection(w http.ResponseWriter, r *http.Request, q reader.Query) {
	q.Search = r.URL.Query().Get("q")
	if seen := r.URL.Query().Get("seen"); seen != "" {
		q.Seen = map[string]bool{}
		for _, id := range strings.Split(seen, ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				q.Seen[id] = true
			}
		}
	}

	sel, err := s.reader.Select(r.Context(), q)
	if err != nil {
		s.log.Error("selection failed", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "selection failed"})
		return
	}
	s.respondJSON(w, http.StatusOK, sel)
}

// respondJSON writes a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("failed to encode JSON response", "error", err)
	}
}
