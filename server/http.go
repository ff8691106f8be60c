package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/wfunc/bombarena/apperr"
	"github.com/wfunc/bombarena/logger"
)

// Handler returns the HTTP surface: the websocket endpoint plus the
// operational and read-only query routes.
func (s *GameServer) Handler() http.Handler {
	metricsPath := s.cfg.Server.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle(metricsPath, s.metrics.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("/stats", s.handleStats)
	return mux
}

func (s *GameServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]interface{}{
		"status":      "ok",
		"connections": s.sessionManager.Count(),
		"rooms":       s.registry.Count(),
		"matches":     s.matches.Count(),
	}
	if s.ctx.Err() != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "shutting down"
	}
	writeJSON(w, status, body)
}

func (s *GameServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := int64(10)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			writeError(w, apperr.New(apperr.InvalidRequest, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	entries, err := s.results.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *GameServer) handleStats(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		writeError(w, apperr.New(apperr.InvalidRequest, "username is required"))
		return
	}

	stats, err := s.results.PlayerStats(r.Context(), username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.InvalidRequest:
		status = http.StatusBadRequest
	default:
		logger.Log.Errorw("http request failed", "error", err)
	}
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"message": apperr.MessageOf(err),
		"code":    apperr.KindOf(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Debugw("response not written", "error", err)
	}
}
