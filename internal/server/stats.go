package server

import (
	"log"
	"net/http"
	"strconv"
)

// defaultActivityDays is the trailing window when the caller
// does not supply one.
const defaultActivityDays = 30

// handleOverview serves GET /api/stats/overview.
func (s *Server) handleOverview(
	w http.ResponseWriter, r *http.Request,
) {
	result, err := s.store.GetOverview(r.Context())
	if err != nil {
		s.statsError(w, "overview", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleModelUsage serves GET /api/stats/models.
func (s *Server) handleModelUsage(
	w http.ResponseWriter, r *http.Request,
) {
	result, err := s.store.GetModelUsage(r.Context())
	if err != nil {
		s.statsError(w, "models", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleActivity serves GET /api/stats/activity?days=N. Absent
// or unparsable days fall back to the 30-day default. Explicit
// zero or negative windows are honored: the cutoff lands at or
// past now and the series comes back empty.
func (s *Server) handleActivity(
	w http.ResponseWriter, r *http.Request,
) {
	days := defaultActivityDays
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			days = n
		}
	}

	result, err := s.store.GetActivity(r.Context(), days)
	if err != nil {
		s.statsError(w, "activity", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleUserLeaderboard serves GET /api/stats/users.
func (s *Server) handleUserLeaderboard(
	w http.ResponseWriter, r *http.Request,
) {
	result, err := s.store.GetUserLeaderboard(r.Context())
	if err != nil {
		s.statsError(w, "users", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleToolUsage serves GET /api/stats/tools.
func (s *Server) handleToolUsage(
	w http.ResponseWriter, r *http.Request,
) {
	result, err := s.store.GetToolUsage(r.Context())
	if err != nil {
		s.statsError(w, "tools", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// statsError reports a failed aggregation. No partial results:
// the endpoint either returned a complete payload above or
// fails here as a whole.
func (s *Server) statsError(
	w http.ResponseWriter, endpoint string, err error,
) {
	log.Printf("stats %s: %v", endpoint, err)
	writeError(w, http.StatusInternalServerError, err.Error())
}
