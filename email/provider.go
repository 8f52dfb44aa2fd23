// Package email relays signup and contact messages through a transactional email provider.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tender-notifier/metrics"
	"tender-notifier/pkg/tender"
)

// Message is one outgoing email.
type Message struct {
	To      string
	ReplyTo string // set on relayed leads so the team can answer the visitor directly
	Subject string
	HTML    string
	Tag     string // welcome, lead or contact
}

// Provider defines the interface for email sending implementations.
type Provider interface {
	Send(ctx context.Context, msg *Message) error
}

// Sender builds lead emails and hands them to a pluggable provider.
type Sender struct {
	provider   Provider
	logger     *slog.Logger
	baseURL    string // For links in emails
	leadsInbox string // Where signups and contact messages are relayed
}

// New creates a new email sender with the given provider.
func New(provider Provider, logger *slog.Logger, baseURL, leadsInbox string) *Sender {
	return &Sender{
		provider:   provider,
		logger:     logger,
		baseURL:    baseURL,
		leadsInbox: leadsInbox,
	}
}

func (s *Sender) send(ctx context.Context, msg *Message) error {
	err := s.provider.Send(ctx, msg)
	metrics.EmailsSent.WithLabelValues(msg.Tag, metrics.Outcome(err)).Inc()
	return err
}

// SendWelcome sends a welcome email to a new signup.
func (s *Sender) SendWelcome(ctx context.Context, signup *tender.Signup) error {
	s.logger.Info("Sending welcome email", "to", signup.Email, "plan", signup.Plan)

	err := s.send(ctx, &Message{
		To:      signup.Email,
		Subject: "Welcome to TenderAlert",
		HTML:    s.formatWelcomeBody(signup),
		Tag:     "welcome",
	})
	if err != nil {
		return fmt.Errorf("send welcome: %w", err)
	}
	return nil
}

// NotifyLead tells the leads inbox about a signup.
func (s *Sender) NotifyLead(ctx context.Context, signup *tender.Signup, ip string) error {
	if s.leadsInbox == "" {
		return errors.New("leads inbox not configured")
	}
	s.logger.Info("Relaying signup to leads inbox", "email", signup.Email)

	err := s.send(ctx, &Message{
		To:      s.leadsInbox,
		ReplyTo: signup.Email,
		Subject: fmt.Sprintf("New signup: %s", signup.Email),
		HTML:    s.formatLeadBody(signup, ip),
		Tag:     "lead",
	})
	if err != nil {
		return fmt.Errorf("notify lead: %w", err)
	}
	return nil
}

// RelayContact forwards a contact form message to the leads inbox.
func (s *Sender) RelayContact(ctx context.Context, msg *tender.ContactMessage, ip string) error {
	if s.leadsInbox == "" {
		return errors.New("leads inbox not configured")
	}
	subject := msg.Subject
	if subject == "" {
		subject = "Contact form message"
	}
	s.logger.Info("Relaying contact message", "from", msg.Email, "message_length", len(msg.Message))

	err := s.send(ctx, &Message{
		To:      s.leadsInbox,
		ReplyTo: msg.Email,
		Subject: "[Contact] " + subject,
		HTML:    s.formatContactBody(msg, ip),
		Tag:     "contact",
	})
	if err != nil {
		return fmt.Errorf("relay contact: %w", err)
	}
	return nil
}
