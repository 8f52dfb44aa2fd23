package email

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
)

const brevoEndpoint = "https://api.brevo.com/v3/smtp/email"

// BrevoProvider relays transactional email through the Brevo HTTP API.
type BrevoProvider struct {
	client   *http.Client
	logger   *slog.Logger
	sender   brevoContact
	apiKey   string
	endpoint string
}

// NewBrevoProvider creates a Brevo provider sending as fromName <fromAddr>.
func NewBrevoProvider(apiKey, fromAddr, fromName string, logger *slog.Logger) *BrevoProvider {
	return &BrevoProvider{
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
		sender:   brevoContact{Email: fromAddr, Name: fromName},
		apiKey:   apiKey,
		endpoint: brevoEndpoint,
	}
}

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoSendRequest struct {
	Sender  brevoContact   `json:"sender"`
	To      []brevoContact `json:"to"`
	ReplyTo *brevoContact  `json:"replyTo,omitempty"`
	Subject string         `json:"subject"`
	HTML    string         `json:"htmlContent"`
	Tags    []string       `json:"tags,omitempty"`
}

type brevoSendResponse struct {
	MessageID string `json:"messageId"`
}

func (b *BrevoProvider) payload(msg *Message) ([]byte, error) {
	req := brevoSendRequest{
		Sender:  b.sender,
		To:      []brevoContact{{Email: msg.To}},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	}
	if msg.ReplyTo != "" {
		req.ReplyTo = &brevoContact{Email: msg.ReplyTo}
	}
	if msg.Tag != "" {
		req.Tags = []string{msg.Tag}
	}
	return json.Marshal(req)
}

// Send posts msg to Brevo. Client errors other than 429 are final.
func (b *BrevoProvider) Send(ctx context.Context, msg *Message) error {
	body, err := b.payload(msg)
	if err != nil {
		return fmt.Errorf("marshal brevo request: %w", err)
	}

	var messageID string
	err = retry.Do(
		func() error {
			id, err := b.post(ctx, body)
			if err != nil {
				return err
			}
			messageID = id
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			b.logger.Info("Retrying Brevo email send after error", "attempt", n, "tag", msg.Tag, "error", err)
		}),
	)
	if err != nil {
		b.logger.Error("Brevo send failed", "to", msg.To, "tag", msg.Tag, "error", err)
		return err
	}

	b.logger.Info("Brevo email accepted", "to", msg.To, "tag", msg.Tag, "message_id", messageID)
	return nil
}

func (b *BrevoProvider) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", retry.Unrecoverable(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", b.apiKey)

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("brevo request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			b.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("read brevo response: %w", err)
	}
	b.logger.Debug("Brevo API responded", "status_code", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := fmt.Errorf("brevo HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return "", retry.Unrecoverable(statusErr)
		}
		return "", statusErr
	}

	var out brevoSendResponse
	if err := json.Unmarshal(data, &out); err != nil {
		// Accepted either way; the id is only for the log line.
		return "", nil
	}
	return out.MessageID, nil
}
