package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"tender-notifier/cache"
	"tender-notifier/metrics"
	"tender-notifier/pkg/tender"
)

// LocalPublisher writes straight into this process's cache store.
type LocalPublisher struct {
	store cache.Store
}

// NewLocalPublisher creates a publisher backed by store.
func NewLocalPublisher(store cache.Store) *LocalPublisher {
	return &LocalPublisher{store: store}
}

// PublishCache replaces the global cache record.
func (p *LocalPublisher) PublishCache(ctx context.Context, rec tender.CacheRecord) error {
	if err := p.store.Set(ctx, rec); err != nil {
		return fmt.Errorf("set cache: %w", err)
	}
	metrics.CacheWrites.WithLabelValues(rec.Source).Inc()
	return nil
}

// PublishStats records the announced live count.
func (p *LocalPublisher) PublishStats(ctx context.Context, rec tender.StatsRecord) error {
	if err := p.store.SetStats(ctx, rec); err != nil {
		return fmt.Errorf("set stats: %w", err)
	}
	return nil
}

// HTTPPublisher posts to the site's own cache and stats endpoints, so a
// refresh triggered on one instance lands wherever SITE_URL routes.
type HTTPPublisher struct {
	client  *http.Client
	logger  *slog.Logger
	siteURL string
}

// NewHTTPPublisher creates a publisher that POSTs to siteURL.
func NewHTTPPublisher(client *http.Client, siteURL string, logger *slog.Logger) *HTTPPublisher {
	return &HTTPPublisher{
		client:  client,
		logger:  logger,
		siteURL: strings.TrimSuffix(siteURL, "/"),
	}
}

// PublishCache POSTs the record to /tenders-cache.
func (p *HTTPPublisher) PublishCache(ctx context.Context, rec tender.CacheRecord) error {
	return p.post(ctx, "/tenders-cache", map[string]any{
		"tenders":          rec.Tenders,
		"totalCount":       rec.TotalCount,
		"liveTendersCount": rec.LiveTendersCount,
		"source":           rec.Source,
	})
}

// PublishStats POSTs the live count to /tender-stats.
func (p *HTTPPublisher) PublishStats(ctx context.Context, rec tender.StatsRecord) error {
	return p.post(ctx, "/tender-stats", map[string]any{
		"liveTendersCount": rec.LiveTendersCount,
		"updatedBy":        rec.UpdatedBy,
	})
}

func (p *HTTPPublisher) post(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	endpoint := p.siteURL + path

	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := p.client.Do(req)
			if err != nil {
				return fmt.Errorf("post %s: %w", path, err)
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					p.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			statusErr := fmt.Errorf("post %s: HTTP %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return retry.Unrecoverable(statusErr)
			}
			return statusErr
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Info("Retrying publish after error", "attempt", n, "path", path, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", endpoint, err)
	}
	return nil
}
