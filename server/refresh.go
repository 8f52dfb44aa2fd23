package server

import (
	"crypto/subtle"
	"net/http"
)

func (s *Server) handleAutoRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.cronAuthorized(r) {
		s.logger.Warn("Unauthorized refresh attempt", "ip", clientIP(r))
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	s.logger.Info("Auto-refresh triggered", "method", r.Method)

	res, err := s.refresher.Run(r.Context())
	if err != nil {
		s.logger.Error("Auto-refresh failed", "error", err)
		writeErrorDetails(w, http.StatusInternalServerError, "CRON auto-refresh failed", err.Error())
		return
	}

	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"success": true,
		"data":    res,
	})
}

// cronAuthorized requires the header to equal "Bearer <secret>" exactly.
// An unset secret locks the endpoint.
func (s *Server) cronAuthorized(r *http.Request) bool {
	if s.cronSecret == "" {
		return false
	}
	want := []byte("Bearer " + s.cronSecret)
	got := []byte(r.Header.Get("Authorization"))
	return subtle.ConstantTimeCompare(got, want) == 1
}
