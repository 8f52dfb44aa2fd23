package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"gopkg.in/gomail.v2"
)

// SMTPProvider sends emails through a plain SMTP relay.
type SMTPProvider struct {
	dialer   *gomail.Dialer
	fromAddr string
	fromName string
	logger   *slog.Logger
}

// NewSMTPProvider creates a new SMTP email provider.
func NewSMTPProvider(host string, port int, user, pass, fromAddr, fromName string, logger *slog.Logger) *SMTPProvider {
	return &SMTPProvider{
		dialer:   gomail.NewDialer(host, port, user, pass),
		fromAddr: fromAddr,
		fromName: fromName,
		logger:   logger,
	}
}

func (p *SMTPProvider) message(msg *Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", p.fromAddr, p.fromName)
	m.SetHeader("To", sanitizeEmailHeader(msg.To))
	if msg.ReplyTo != "" {
		m.SetHeader("Reply-To", sanitizeEmailHeader(msg.ReplyTo))
	}
	m.SetHeader("Subject", sanitizeEmailHeader(msg.Subject))
	if msg.Tag != "" {
		m.SetHeader("X-Tag", msg.Tag)
	}
	m.SetBody("text/html", msg.HTML)
	return m
}

// Send delivers msg through the configured SMTP relay.
func (p *SMTPProvider) Send(ctx context.Context, msg *Message) error {
	m := p.message(msg)
	to := msg.To

	return retry.Do(
		func() error {
			startTime := time.Now()
			if err := p.dialer.DialAndSend(m); err != nil {
				p.logger.Warn("SMTP send failed, will retry",
					"to", to,
					"duration_ms", time.Since(startTime).Milliseconds(),
					"error", err)
				return fmt.Errorf("dial and send: %w", err)
			}

			p.logger.Info("SMTP send completed",
				"to", to,
				"duration_ms", time.Since(startTime).Milliseconds(),
				"status", "success")
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Info("Retrying SMTP email send after error", "attempt", n, "error", err)
		}),
	)
}
