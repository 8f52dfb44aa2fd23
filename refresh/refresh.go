// Package refresh pulls the first page of tenders from the upstream API and
// republishes it into the global tender cache and the stats slot.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tender-notifier/metrics"
	"tender-notifier/pkg/tender"
	"tender-notifier/tendersource"
)

// PageSize is the number of tenders requested per run.
const PageSize = 50

// Source fetches tenders from the upstream API.
type Source interface {
	Search(ctx context.Context, q tendersource.Query) (*tendersource.Response, error)
}

// Publisher receives the fetched data.
type Publisher interface {
	PublishCache(ctx context.Context, rec tender.CacheRecord) error
	PublishStats(ctx context.Context, rec tender.StatsRecord) error
}

// Result summarises one run.
type Result struct {
	TendersCount     int       `json:"tendersCount"`
	TotalCount       int       `json:"totalCount"`
	LiveTendersCount int       `json:"liveTendersCount"`
	Timestamp        time.Time `json:"timestamp"`
	Source           string    `json:"source"`
	CacheUpdated     bool      `json:"cacheUpdated"`
	StatsUpdated     bool      `json:"statsUpdated"`
}

// Orchestrator runs a refresh.
type Orchestrator struct {
	source    Source
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an orchestrator.
func New(source Source, publisher Publisher, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		source:    source,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run fetches page 1 and publishes it. Only the fetch is fatal; each publish
// is attempted regardless of the other's outcome.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	o.logger.Info("Starting tender refresh", "page_size", PageSize)

	resp, err := o.source.Search(ctx, tendersource.Query{Page: 1, Limit: PageSize})
	if err != nil {
		metrics.RefreshRuns.WithLabelValues(metrics.Failed).Inc()
		return nil, fmt.Errorf("fetch tenders: %w", err)
	}

	items := resp.Items
	if items == nil {
		items = []tender.Tender{}
	}
	now := o.now()

	res := &Result{
		TendersCount:     len(items),
		TotalCount:       resp.Count,
		LiveTendersCount: resp.LiveTenders,
		Timestamp:        now,
		Source:           "cron",
	}

	cacheErr := o.publisher.PublishCache(ctx, tender.CacheRecord{
		Tenders:          items,
		TotalCount:       resp.Count,
		LiveTendersCount: resp.LiveTenders,
		LastFetched:      now,
		Source:           tender.SourceCronRefresh,
	})
	metrics.RefreshPublishes.WithLabelValues("cache", metrics.Outcome(cacheErr)).Inc()
	if cacheErr != nil {
		o.logger.Warn("Cache publish failed, continuing", "error", cacheErr)
	} else {
		res.CacheUpdated = true
	}

	statsErr := o.publisher.PublishStats(ctx, tender.StatsRecord{
		LiveTendersCount: resp.LiveTenders,
		UpdatedBy:        tender.SourceCronRefresh,
		RecordedAt:       now,
	})
	metrics.RefreshPublishes.WithLabelValues("stats", metrics.Outcome(statsErr)).Inc()
	if statsErr != nil {
		o.logger.Warn("Stats publish failed, continuing", "error", statsErr)
	} else {
		res.StatsUpdated = true
	}

	metrics.RefreshRuns.WithLabelValues(metrics.OK).Inc()
	metrics.RefreshTenders.Set(float64(len(items)))
	o.logger.Info("Tender refresh completed",
		"tenders", res.TendersCount,
		"total_count", res.TotalCount,
		"live_tenders", res.LiveTendersCount,
		"cache_updated", res.CacheUpdated,
		"stats_updated", res.StatsUpdated,
		"duration_ms", time.Since(start).Milliseconds())

	return res, nil
}
