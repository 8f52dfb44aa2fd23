package server

import (
	"net/http"
	"time"

	"tender-notifier/metrics"
	"tender-notifier/pkg/tender"
	"tender-notifier/query"
)

const snapshotSource = "supabase_snapshot"

type tendersResponse struct {
	Source              string          `json:"source"`
	Count               int             `json:"count"`
	LiveTenders         int             `json:"live_tenders"`
	Items               []tender.Tender `json:"items"`
	TotalItems          int             `json:"total_items"`
	TotalProcessingTime float64         `json:"total_processing_time"`
	ScrapedAt           *time.Time      `json:"scraped_at"`
	Page                int             `json:"page"`
	Limit               int             `json:"limit"`
	HasMore             bool            `json:"has_more"`
	Message             string          `json:"message,omitempty"`
}

func (s *Server) handleTenders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	defer func() { metrics.QueryDuration.Observe(time.Since(start).Seconds()) }()

	q := r.URL.Query()
	params := query.ParseParams(q.Get("query"), q.Get("page"), q.Get("limit"))

	snap, err := s.store.Snapshot(r.Context())
	if err != nil && !s.isNotFound(err) {
		s.logger.Error("Failed to read tender snapshot", "error", err)
		writeErrorDetails(w, http.StatusInternalServerError, "Failed to read tender snapshot", err.Error())
		return
	}

	if snap == nil || snap.Payload == nil {
		writeJSON(w, s.logger, http.StatusOK, tendersResponse{
			Source:  snapshotSource,
			Items:   []tender.Tender{},
			Page:    params.Page,
			Limit:   params.Limit,
			Message: "No tender data available yet",
		})
		return
	}

	page := query.Run(snap.Payload, params)

	live := snap.LiveTenders
	if live == 0 {
		live = page.Total
	}
	var scrapedAt *time.Time
	if !snap.ScrapedAt.IsZero() {
		t := snap.ScrapedAt
		scrapedAt = &t
	}

	resp := tendersResponse{
		Source:              snapshotSource,
		Count:               len(page.Items),
		LiveTenders:         live,
		Items:               page.Items,
		TotalItems:          page.Total,
		TotalProcessingTime: time.Since(start).Seconds(),
		ScrapedAt:           scrapedAt,
		Page:                params.Page,
		Limit:               params.Limit,
		HasMore:             page.HasMore,
	}

	s.logger.Debug("Tender query served",
		"query", params.Query,
		"page", params.Page,
		"limit", params.Limit,
		"total_items", page.Total,
		"returned", resp.Count)

	writeJSON(w, s.logger, http.StatusOK, resp)
}

