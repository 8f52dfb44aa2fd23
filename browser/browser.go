// Package browser drives the tender list a signed-in user sees: it hydrates
// from the user's local cache or the site's global cache, runs searches
// against the tender API and shares fresh results back with the site.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tender-notifier/pkg/tender"
	"tender-notifier/tendersource"
)

const (
	// SearchLimit is the page size requested from the tender API.
	SearchLimit = 200
	// DefaultTimeout bounds a single search.
	DefaultTimeout = 90 * time.Second

	publishTimeout = 30 * time.Second
)

// Origins of the current state.
const (
	OriginNone   = ""
	OriginLocal  = "local"
	OriginGlobal = "global"
	OriginSearch = "search"
)

// ErrSuperseded is returned by a search whose result arrived after a newer
// search had started. The result is discarded.
var ErrSuperseded = errors.New("search superseded by a newer request")

// SearchError is a failed search the user may retry.
type SearchError struct {
	Message   string
	Retryable bool
	Err       error
}

func (e *SearchError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *SearchError) Unwrap() error { return e.Err }

// Searcher fetches a page from the tender API.
type Searcher interface {
	Search(ctx context.Context, q tendersource.Query) (*tendersource.Response, error)
}

// Site is the deployed site's cache and stats surface.
type Site interface {
	FetchCache(ctx context.Context) (tender.CacheRecord, error)
	PublishCache(ctx context.Context, rec tender.CacheRecord) error
	PublishStats(ctx context.Context, rec tender.StatsRecord) error
}

// State is what the list view renders.
type State struct {
	Tenders          []tender.Tender
	TotalCount       int
	LiveTendersCount int
	LastFetched      time.Time
	SearchQuery      string
	Page             int
	FromCache        bool
	Origin           string
}

// Config holds browser dependencies.
type Config struct {
	UserID    string
	Local     *LocalStore
	API       Searcher
	Site      Site
	Logger    *slog.Logger
	Timeout   time.Duration // defaults to DefaultTimeout
	OnLoading func(loading bool)
}

// Browser is the per-user tender list controller. It is safe for
// concurrent use; only the newest search may change state.
type Browser struct {
	userID    string
	local     *LocalStore
	api       Searcher
	site      Site
	logger    *slog.Logger
	timeout   time.Duration
	onLoading func(bool)
	now       func() time.Time

	mu     sync.Mutex
	state  State
	gen    uint64
	cancel context.CancelFunc
}

// New creates a browser for one user.
func New(cfg *Config) *Browser {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Browser{
		userID:    cfg.UserID,
		local:     cfg.Local,
		api:       cfg.API,
		site:      cfg.Site,
		logger:    cfg.Logger,
		timeout:   timeout,
		onLoading: cfg.OnLoading,
		now:       func() time.Time { return time.Now().UTC() },
		state:     State{Tenders: []tender.Tender{}, Page: 1},
	}
}

// State returns a copy of the current state.
func (b *Browser) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.state
	st.Tenders = append([]tender.Tender(nil), b.state.Tenders...)
	return st
}

// Load hydrates the state from the local cache, falling back to one read of
// the global cache. Finding nothing is not an error.
func (b *Browser) Load(ctx context.Context) (State, error) {
	lc, err := b.local.Load(b.userID)
	if err != nil {
		b.logger.Warn("Ignoring unreadable local cache", "user_id", b.userID, "error", err)
	}
	if lc != nil && len(lc.Tenders) > 0 {
		b.mu.Lock()
		b.state = State{
			Tenders:          lc.Tenders,
			TotalCount:       lc.TotalCount,
			LiveTendersCount: lc.LiveTendersCount,
			LastFetched:      lc.LastFetched,
			SearchQuery:      lc.SearchQuery,
			Page:             max(lc.Page, 1),
			FromCache:        true,
			Origin:           OriginLocal,
		}
		b.mu.Unlock()
		b.logger.Info("Loaded tenders from local cache", "user_id", b.userID, "tenders", len(lc.Tenders))
		return b.State(), nil
	}

	rec, err := b.site.FetchCache(ctx)
	if err != nil {
		b.logger.Warn("Global cache unavailable", "error", err)
		return b.State(), nil
	}
	if len(rec.Tenders) == 0 {
		return b.State(), nil
	}

	b.mu.Lock()
	b.state = State{
		Tenders:          rec.Tenders,
		TotalCount:       rec.TotalCount,
		LiveTendersCount: rec.LiveTendersCount,
		LastFetched:      rec.LastFetched,
		Page:             1,
		FromCache:        true,
		Origin:           OriginGlobal,
	}
	b.mu.Unlock()
	b.logger.Info("Loaded tenders from global cache", "tenders", len(rec.Tenders), "source", rec.Source)
	return b.State(), nil
}

// Search runs a query against the tender API and, on success, replaces the
// state, saves it locally and shares it with the site. Starting a search
// cancels the one in flight.
func (b *Browser) Search(ctx context.Context, query string, page int) (State, error) {
	if page < 1 {
		page = 1
	}

	b.mu.Lock()
	b.gen++
	gen := b.gen
	if b.cancel != nil {
		b.cancel()
	}
	reqCtx, cancel := context.WithTimeout(ctx, b.timeout)
	b.cancel = cancel
	b.mu.Unlock()
	defer cancel()

	b.setLoading(gen, true)
	defer b.setLoading(gen, false)

	resp, err := b.api.Search(reqCtx, tendersource.Query{Query: query, Page: page, Limit: SearchLimit})

	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		b.logger.Debug("Discarding superseded search", "query", query, "page", page)
		return State{}, ErrSuperseded
	}
	b.cancel = nil
	if err != nil {
		b.mu.Unlock()
		msg := "Failed to fetch tenders"
		if tendersource.IsStatusError(err) {
			msg = "Tender API returned an error"
		} else if errors.Is(err, context.DeadlineExceeded) {
			msg = "Tender API timed out"
		}
		return State{}, &SearchError{Message: msg, Retryable: true, Err: err}
	}
	if msg, failed := resp.DebugError(); failed {
		b.mu.Unlock()
		return State{}, &SearchError{Message: msg, Retryable: true}
	}

	now := b.now()
	b.state = State{
		Tenders:          resp.Items,
		TotalCount:       resp.Count,
		LiveTendersCount: resp.LiveTenders,
		LastFetched:      now,
		SearchQuery:      query,
		Page:             page,
		Origin:           OriginSearch,
	}
	st := b.state
	b.mu.Unlock()

	if err := b.local.Save(b.userID, &tender.LocalCache{
		Tenders:          st.Tenders,
		TotalCount:       st.TotalCount,
		LiveTendersCount: st.LiveTendersCount,
		LastFetched:      st.LastFetched,
		SearchQuery:      st.SearchQuery,
		Page:             st.Page,
	}); err != nil {
		b.logger.Warn("Failed to save local cache", "user_id", b.userID, "error", err)
	}

	b.share(ctx, st)

	b.logger.Info("Search completed",
		"query", query,
		"page", page,
		"tenders", len(st.Tenders),
		"live_tenders", st.LiveTendersCount)
	st.Tenders = append([]tender.Tender(nil), st.Tenders...)
	return st, nil
}

// share pushes a fresh result to the site. Failures are only logged.
func (b *Browser) share(ctx context.Context, st State) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := b.site.PublishCache(ctx, tender.CacheRecord{
		Tenders:          st.Tenders,
		TotalCount:       st.TotalCount,
		LiveTendersCount: st.LiveTendersCount,
		LastFetched:      st.LastFetched,
		Source:           tender.SourceManual,
	}); err != nil {
		b.logger.Warn("Failed to share results with global cache", "error", err)
	}
	if err := b.site.PublishStats(ctx, tender.StatsRecord{
		LiveTendersCount: st.LiveTendersCount,
		UpdatedBy:        tender.SourceManualQuery,
		RecordedAt:       st.LastFetched,
	}); err != nil {
		b.logger.Warn("Failed to announce live tender count", "error", err)
	}
}

func (b *Browser) setLoading(gen uint64, loading bool) {
	if b.onLoading == nil {
		return
	}
	b.mu.Lock()
	latest := gen == b.gen
	b.mu.Unlock()
	if latest {
		b.onLoading(loading)
	}
}

// Fresh reports whether the state was fetched within the freshness window.
func (b *Browser) Fresh() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	lc := tender.LocalCache{LastFetched: b.state.LastFetched}
	return lc.Fresh(b.now())
}

// Clear drops the local cache and resets the state.
func (b *Browser) Clear() error {
	if err := b.local.Clear(b.userID); err != nil {
		return fmt.Errorf("clear local cache: %w", err)
	}
	b.mu.Lock()
	b.state = State{Tenders: []tender.Tender{}, Page: 1}
	b.mu.Unlock()
	return nil
}
