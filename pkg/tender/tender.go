// Package tender contains the core domain types for the tender notification service.
package tender

import "time"

// Tender is a single procurement notice as published by the upstream source.
// RefNo acts as a natural key but duplicates are tolerated.
type Tender struct {
	Title         string `json:"title"`
	RefNo         string `json:"ref_no"`
	ClosingDate   string `json:"closing_date"`
	OpeningDate   string `json:"opening_date"`
	PublishedDate string `json:"published_date"`
	Organisation  string `json:"organisation"`
	URL           string `json:"url"`
}

// SnapshotID is the fixed id of the only snapshot row.
const SnapshotID = 1

// Snapshot is the single latest_snapshot row written by the ingestion process.
// Payload is nil when the row exists but carries no data yet.
type Snapshot struct {
	ID          int       `json:"id"`
	Payload     []Tender  `json:"payload"`
	LiveTenders int       `json:"live_tenders"`
	Count       int       `json:"count"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// LiveCount returns live_tenders, falling back to count.
func (s *Snapshot) LiveCount() int {
	if s.LiveTenders > 0 {
		return s.LiveTenders
	}
	return s.Count
}

// CacheRecord is the global tender cache held by the server.
type CacheRecord struct {
	Tenders          []Tender  `json:"tenders"`
	TotalCount       int       `json:"totalCount"`
	LiveTendersCount int       `json:"liveTendersCount"`
	LastFetched      time.Time `json:"lastFetched"`
	Source           string    `json:"source"`
}

// EmptyCacheRecord is the value a freshly started process serves.
func EmptyCacheRecord() CacheRecord {
	return CacheRecord{Tenders: []Tender{}}
}

// Cache sources.
const (
	SourceManual      = "manual"
	SourceCronRefresh = "cron-auto-refresh"
	SourceManualQuery = "manual-search"
)

// StatsRecord is a live tender count announced by a writer (refresh job or client).
type StatsRecord struct {
	LiveTendersCount int       `json:"liveTendersCount"`
	UpdatedBy        string    `json:"updatedBy"`
	RecordedAt       time.Time `json:"recordedAt"`
}

// FreshnessWindow is how long a per-user local cache counts as fresh.
const FreshnessWindow = 24 * time.Hour

// LocalCache is the per-user tender list persisted on the client device.
type LocalCache struct {
	Tenders          []Tender  `json:"tenders"`
	TotalCount       int       `json:"totalCount"`
	LiveTendersCount int       `json:"liveTendersCount"`
	LastFetched      time.Time `json:"lastFetched"`
	SearchQuery      string    `json:"searchQuery"`
	Page             int       `json:"page"`
}

// Fresh reports whether the cache was fetched within FreshnessWindow of now.
// Stale caches are still usable.
func (c *LocalCache) Fresh(now time.Time) bool {
	if c.LastFetched.IsZero() {
		return false
	}
	return now.Sub(c.LastFetched) < FreshnessWindow
}
