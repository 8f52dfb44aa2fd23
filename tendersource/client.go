// Package tendersource fetches paginated tender records from the external tender API.
package tendersource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/codeGROOVE-dev/retry"

	"tender-notifier/pkg/tender"
)

const maxBodyBytes = 32 << 20

// Query selects a page of the upstream result set.
type Query struct {
	Query string
	Page  int
	Limit int
}

// Response is the upstream body. Missing numeric fields decode as zero and a
// missing items array is normalised to an empty slice.
type Response struct {
	Items               []tender.Tender `json:"items"`
	Count               int             `json:"count"`
	LiveTenders         int             `json:"live_tenders"`
	TotalItems          int             `json:"total_items"`
	Page                int             `json:"page"`
	Limit               int             `json:"limit"`
	HasMore             bool            `json:"has_more"`
	TotalProcessingTime float64         `json:"total_processing_time"`
	Debug               []string        `json:"debug"`
}

// DebugError returns the first debug entry mentioning "error" when the
// response carried no items, which the upstream uses to report logical failures.
func (r *Response) DebugError() (string, bool) {
	if len(r.Items) > 0 {
		return "", false
	}
	for _, line := range r.Debug {
		if strings.Contains(strings.ToLower(line), "error") {
			return line, true
		}
	}
	return "", false
}

// StatusError indicates the upstream answered with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// IsStatusError checks if an error is an upstream status error.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// Client talks to the tender API.
type Client struct {
	client   *http.Client
	logger   *slog.Logger
	baseURL  string
	attempts uint
	delay    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithAttempts sets the number of attempts for transport failures. One disables retries.
func WithAttempts(n uint) Option {
	return func(c *Client) { c.attempts = n }
}

// WithRetryDelay sets the base delay between attempts. It must be positive.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.delay = d
		}
	}
}

// New creates a client for the API rooted at baseURL.
func New(client *http.Client, baseURL string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		client:   client,
		logger:   logger,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		attempts: 3,
		delay:    time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search fetches one page of tenders. Transport failures are retried;
// non-2xx answers are returned immediately as *StatusError.
func (c *Client) Search(ctx context.Context, q Query) (*Response, error) {
	reqURL := c.searchURL(q)
	var (
		out       *Response
		statusErr *StatusError
	)

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Accept", "application/json")

			startTime := time.Now()
			resp, err := c.client.Do(req)
			duration := time.Since(startTime)
			if err != nil {
				c.logger.Warn("Tender API request failed", "url", reqURL, "duration_ms", duration.Milliseconds(), "error", err)
				return fmt.Errorf("request tender api: %w", err)
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					c.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			c.logger.Info("Tender API request completed",
				"url", reqURL,
				"status_code", resp.StatusCode,
				"duration_ms", duration.Milliseconds())

			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				statusErr = &StatusError{URL: reqURL, StatusCode: resp.StatusCode}
				return retry.Unrecoverable(statusErr)
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			if err != nil {
				return fmt.Errorf("read tender api body: %w", err)
			}
			var r Response
			if err := json.Unmarshal(body, &r); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode tender api body: %w", err))
			}
			out = &r
			return nil
		},
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(c.delay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Info("Retrying tender API request after error", "attempt", n, "error", err)
		}),
	)
	if statusErr != nil {
		return nil, fmt.Errorf("search tenders: %w", statusErr)
	}
	if err != nil {
		return nil, fmt.Errorf("search tenders: %w", err)
	}

	if out.Items == nil {
		out.Items = []tender.Tender{}
	}
	CleanTenders(out.Items)
	return out, nil
}

// CleanTenders normalises the display fields of items in place. Every path
// that stores tenders (API search and snapshot ingest) runs it, so a tender
// reads the same from the cache and from the snapshot.
func CleanTenders(items []tender.Tender) {
	for i := range items {
		items[i].Title = cleanText(items[i].Title)
		items[i].Organisation = cleanText(items[i].Organisation)
	}
}

func (c *Client) searchURL(q Query) string {
	v := url.Values{}
	page := q.Page
	if page < 1 {
		page = 1
	}
	v.Set("page", strconv.Itoa(page))
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if s := strings.TrimSpace(q.Query); s != "" {
		v.Set("query", s)
	}
	return c.baseURL + "/tenders?" + v.Encode()
}

// cleanText strips markup some portals leave in titles and collapses whitespace.
func cleanText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
