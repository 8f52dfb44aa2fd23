package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	"tender-notifier/metrics"
	"tender-notifier/pkg/tender"
)

const maxCacheBody = 32 << 20

type cacheUpdateRequest struct {
	Tenders          json.RawMessage `json:"tenders"`
	TotalCount       *int            `json:"totalCount"`
	LiveTendersCount *int            `json:"liveTendersCount"`
	Source           *string         `json:"source"`
}

func (s *Server) handleTendersCache(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.getTendersCache(w, r)
	case http.MethodPost:
		s.postTendersCache(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) getTendersCache(w http.ResponseWriter, r *http.Request) {
	rec, err := s.cache.Get(r.Context())
	if err != nil {
		s.logger.Error("Failed to read tender cache", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch tender cache")
		return
	}

	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"success": true,
		"data":    rec,
		"cached":  true,
	})
}

func (s *Server) postTendersCache(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCacheBody)

	var req cacheUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("Rejected cache update", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid tenders array")
		return
	}
	raw := bytes.TrimSpace(req.Tenders)
	if len(raw) == 0 || raw[0] != '[' {
		writeError(w, http.StatusBadRequest, "Invalid tenders array")
		return
	}
	var tenders []tender.Tender
	if err := json.Unmarshal(raw, &tenders); err != nil {
		s.logger.Warn("Rejected cache update", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid tenders array")
		return
	}
	if tenders == nil {
		tenders = []tender.Tender{}
	}

	rec := tender.CacheRecord{
		Tenders:     tenders,
		TotalCount:  len(tenders),
		LastFetched: s.now(),
		Source:      tender.SourceManual,
	}
	if req.TotalCount != nil {
		rec.TotalCount = *req.TotalCount
	}
	if req.LiveTendersCount != nil {
		rec.LiveTendersCount = *req.LiveTendersCount
	}
	if req.Source != nil && *req.Source != "" {
		rec.Source = *req.Source
	}

	if err := s.cache.Set(r.Context(), rec); err != nil {
		s.logger.Error("Failed to update tender cache", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update tender cache")
		return
	}
	metrics.CacheWrites.WithLabelValues(rec.Source).Inc()

	s.logger.Info("Tender cache replaced",
		"tenders", len(rec.Tenders),
		"total_count", rec.TotalCount,
		"live_tenders", rec.LiveTendersCount,
		"source", rec.Source)

	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"success": true,
		"data":    rec,
	})
}
