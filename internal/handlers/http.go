// internal/handlers/http.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/jason-s-yu/rummy/internal/errs"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultLeaderboardLimit
	case n > maxLeaderboardLimit:
		return maxLeaderboardLimit
	}
	return n
}

// Routes mounts the websocket endpoint and the read-only query surface.
func (srv *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", srv.WSHandler())
	mux.HandleFunc("GET /stats/{userId}", srv.StatsHandler)
	mux.HandleFunc("GET /leaderboard", srv.LeaderboardHandler)
	mux.HandleFunc("GET /healthz", srv.HealthHandler)
	return mux
}

// StatsHandler serves a user's rating record with its tier.
func (srv *Server) StatsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		writeError(w, errs.New(errs.InvalidPayload, "user_id_required"))
		return
	}
	stats, err := srv.Ratings.GetStats(r.Context(), userID)
	if err != nil {
		srv.Logger.WithError(err).WithField("user", userID).Error("failed to load stats")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// LeaderboardHandler serves the top entries, ?limit=N (default 10, max 100).
func (srv *Server) LeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, errs.New(errs.InvalidPayload, "invalid_limit"))
			return
		}
		limit = n
	}
	entries, err := srv.Ratings.Leaderboard(r.Context(), clampLimit(limit))
	if err != nil {
		srv.Logger.WithError(err).Error("failed to load leaderboard")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HealthHandler reports whether the shared store answers.
func (srv *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := srv.Hub.rdb.Ping(r.Context()).Err(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "store_unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func statusFor(k errs.Kind) int {
	switch k {
	case errs.InvalidPayload:
		return http.StatusBadRequest
	case errs.NotFound:
		return http.StatusNotFound
	case errs.Unauthorized:
		return http.StatusForbidden
	case errs.InvalidState, errs.RuleViolation, errs.ResourceExhausted, errs.InsufficientCards:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(errs.KindOf(err)), map[string]string{"error": errs.Reason(err)})
}
