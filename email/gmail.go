package email

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
)

// GmailProvider sends emails via Gmail API as the authenticated account.
type GmailProvider struct {
	service  *gmail.Service
	fromName string
	logger   *slog.Logger
}

// NewGmailProvider creates a new Gmail email provider.
func NewGmailProvider(service *gmail.Service, fromName string, logger *slog.Logger) *GmailProvider {
	return &GmailProvider{
		service:  service,
		fromName: fromName,
		logger:   logger,
	}
}

// sanitizeEmailHeader removes CR, LF and other control characters so a value
// cannot start a new header line.
func sanitizeEmailHeader(s string) string {
	var result strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// buildMIME renders a minimal HTML message. Gmail fills in the From address.
func buildMIME(msg *Message, fromName string) string {
	var b strings.Builder
	header := func(name, value string) {
		b.WriteString(name + ": " + value + "\r\n")
	}
	header("MIME-Version", "1.0")
	if fromName != "" {
		header("From", mime.QEncoding.Encode("utf-8", sanitizeEmailHeader(fromName)))
	}
	header("To", sanitizeEmailHeader(msg.To))
	if msg.ReplyTo != "" {
		header("Reply-To", sanitizeEmailHeader(msg.ReplyTo))
	}
	header("Subject", mime.QEncoding.Encode("utf-8", sanitizeEmailHeader(msg.Subject)))
	header("Content-Type", "text/html; charset=utf-8")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return b.String()
}

// Send sends msg through the Gmail API as the authenticated account.
func (g *GmailProvider) Send(ctx context.Context, msg *Message) error {
	encoded := base64.URLEncoding.EncodeToString([]byte(buildMIME(msg, g.fromName)))
	to := msg.To

	return retry.Do(
		func() error {
			startTime := time.Now()
			_, err := g.service.Users.Messages.Send("me", &gmail.Message{
				Raw: encoded,
			}).Context(ctx).Do()
			duration := time.Since(startTime)

			if err != nil {
				var apiErr *googleapi.Error
				if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != 429 {
					g.logger.Error("Gmail API rejected email", "to", to, "code", apiErr.Code, "error", err)
					return retry.Unrecoverable(fmt.Errorf("gmail send: %w", err))
				}
				g.logger.Warn("Gmail API send failed, will retry",
					"to", to,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return fmt.Errorf("gmail send: %w", err)
			}

			g.logger.Info("Gmail API request completed",
				"to", to,
				"tag", msg.Tag,
				"duration_ms", duration.Milliseconds())
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			g.logger.Info("Retrying Gmail email send after error", "attempt", n, "error", err)
		}),
	)
}
