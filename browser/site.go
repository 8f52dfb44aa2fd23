package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"tender-notifier/pkg/tender"
	"tender-notifier/refresh"
)

// SiteClient talks to the deployed site's cache and stats endpoints.
// Writes reuse the refresh publisher.
type SiteClient struct {
	*refresh.HTTPPublisher
	client  *http.Client
	logger  *slog.Logger
	siteURL string
}

// NewSiteClient creates a client for siteURL.
func NewSiteClient(client *http.Client, siteURL string, logger *slog.Logger) *SiteClient {
	return &SiteClient{
		HTTPPublisher: refresh.NewHTTPPublisher(client, siteURL, logger),
		client:        client,
		logger:        logger,
		siteURL:       strings.TrimSuffix(siteURL, "/"),
	}
}

type cacheEnvelope struct {
	Success bool               `json:"success"`
	Data    tender.CacheRecord `json:"data"`
}

// FetchCache reads the Global Tender Cache.
func (c *SiteClient) FetchCache(ctx context.Context) (tender.CacheRecord, error) {
	endpoint := c.siteURL + "/tenders-cache"
	var env cacheEnvelope

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			resp, err := c.client.Do(req)
			if err != nil {
				return fmt.Errorf("get tender cache: %w", err)
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					c.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()
			if resp.StatusCode != http.StatusOK {
				statusErr := fmt.Errorf("get tender cache: HTTP %d", resp.StatusCode)
				if resp.StatusCode < 500 {
					return retry.Unrecoverable(statusErr)
				}
				return statusErr
			}
			body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
			if err != nil {
				return fmt.Errorf("read tender cache: %w", err)
			}
			if err := json.Unmarshal(body, &env); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode tender cache: %w", err))
			}
			return nil
		},
		retry.Attempts(2),
		retry.Delay(500*time.Millisecond),
		retry.MaxJitter(500*time.Millisecond),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Info("Retrying cache read after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return tender.CacheRecord{}, fmt.Errorf("fetch global cache: %w", err)
	}
	return env.Data, nil
}
