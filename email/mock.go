package email

import (
	"context"
	"log/slog"
	"sync"
)

// MockProvider records emails instead of sending them. Used in local
// development and tests.
type MockProvider struct {
	logger *slog.Logger
	err    error

	mu   sync.Mutex
	sent []Message
}

// NewMockProvider creates a new mock email provider.
func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{
		logger: logger,
	}
}

// FailWith makes every later Send return err.
func (m *MockProvider) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Send logs the email and keeps a copy.
func (m *MockProvider) Send(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, *msg)
	m.logger.Info("MOCK EMAIL",
		"to", msg.To,
		"reply_to", msg.ReplyTo,
		"subject", msg.Subject,
		"tag", msg.Tag,
		"body_length", len(msg.HTML))
	return nil
}

// Sent returns a copy of the captured messages.
func (m *MockProvider) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}
