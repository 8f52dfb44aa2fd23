package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"tender-notifier/pkg/tender"
)

type statsResponse struct {
	LiveTendersCount int        `json:"liveTendersCount"`
	LastUpdated      *time.Time `json:"lastUpdated"`
	IsConnected      bool       `json:"isConnected"`
	Source           string     `json:"source,omitempty"`
}

type statsUpdateRequest struct {
	LiveTendersCount *int   `json:"liveTendersCount"`
	UpdatedBy        string `json:"updatedBy"`
}

func (s *Server) handleTenderStats(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.getTenderStats(w, r)
	case http.MethodPost:
		s.postTenderStats(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// getTenderStats reports the snapshot's live count. The announced count is
// only used while no snapshot can be read.
func (s *Server) getTenderStats(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Snapshot(r.Context())
	if err == nil && snap != nil {
		count := snap.LiveCount()
		var updated *time.Time
		if !snap.ScrapedAt.IsZero() {
			t := snap.ScrapedAt
			updated = &t
		}
		writeJSON(w, s.logger, http.StatusOK, statsResponse{
			LiveTendersCount: count,
			LastUpdated:      updated,
			IsConnected:      count > 0,
		})
		return
	}

	snapErr := err
	if snapErr != nil && !s.isNotFound(snapErr) {
		s.logger.Warn("Snapshot unreadable, falling back to announced stats", "error", snapErr)
	}

	announced, ok, err := s.cache.Stats(r.Context())
	if err != nil {
		s.logger.Error("Failed to read announced stats", "error", err)
	}
	if ok {
		t := announced.RecordedAt
		writeJSON(w, s.logger, http.StatusOK, statsResponse{
			LiveTendersCount: announced.LiveTendersCount,
			LastUpdated:      &t,
			IsConnected:      announced.LiveTendersCount > 0,
			Source:           "announced",
		})
		return
	}

	if snapErr != nil && !s.isNotFound(snapErr) {
		writeErrorDetails(w, http.StatusInternalServerError, "Failed to fetch tender stats", snapErr.Error())
		return
	}
	writeJSON(w, s.logger, http.StatusOK, statsResponse{})
}

func (s *Server) postTenderStats(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)

	var req statsUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid stats payload")
		return
	}
	if req.LiveTendersCount == nil || *req.LiveTendersCount < 0 {
		writeError(w, http.StatusBadRequest, "liveTendersCount must be a non-negative integer")
		return
	}
	updatedBy := strings.TrimSpace(req.UpdatedBy)
	if updatedBy == "" {
		updatedBy = "unknown"
	}

	rec := tender.StatsRecord{
		LiveTendersCount: *req.LiveTendersCount,
		UpdatedBy:        updatedBy,
		RecordedAt:       s.now(),
	}
	if err := s.cache.SetStats(r.Context(), rec); err != nil {
		s.logger.Error("Failed to record announced stats", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update tender stats")
		return
	}

	s.logger.Info("Live tender count announced", "count", rec.LiveTendersCount, "updated_by", rec.UpdatedBy)

	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"success":          true,
		"liveTendersCount": rec.LiveTendersCount,
		"updatedBy":        rec.UpdatedBy,
		"recordedAt":       rec.RecordedAt,
	})
}
