package api

import (
	"net/http"
)

func (s *Server) handleCompareStats(w http.ResponseWriter, r *http.Request) {
	window := s.runner.Window()
	if window == nil {
		jsonError(w, "comparison stats unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"window":      s.cfg.StatsWindow.String(),
		"stats":       window.Snapshot(),
		"queue_depth": s.orchestrator.QueueDepth(),
	})
}
