package email

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"tender-notifier/pkg/tender"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestEscapeHTML(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"<script>", "&lt;script&gt;"},
		{"hello & goodbye", "hello &amp; goodbye"},
		{`"quotes"`, "&quot;quotes&quot;"},
		{"it's", "it&#39;s"},
		{"<b>test</b>", "&lt;b&gt;test&lt;/b&gt;"},
	}

	for _, tt := range tests {
		result := escapeHTML(tt.input)
		if result != tt.expected {
			t.Errorf("escapeHTML(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestSanitizeEmailHeader(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"user@example.com", "user@example.com"},
		{"victim@example.com\r\nBcc: attacker@example.com", "victim@example.comBcc: attacker@example.com"},
		{"Subject\x00with\x7fcontrols", "Subjectwithcontrols"},
		{"Tenders – ünïcode", "Tenders – ünïcode"},
	}

	for _, tt := range tests {
		if got := sanitizeEmailHeader(tt.input); got != tt.expected {
			t.Errorf("sanitizeEmailHeader(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestBuildMIMEHeaderInjection(t *testing.T) {
	msg := buildMIME(&Message{
		To:      "a@example.com\nBcc: evil@example.com",
		ReplyTo: "lead@example.com\r\nX-Evil: 2",
		Subject: "Hello\r\nX-Evil: 1",
		HTML:    "<p>body</p>",
	}, "Tender Alerts")
	headers, _, _ := strings.Cut(msg, "\r\n\r\n")
	for _, line := range strings.Split(headers, "\r\n") {
		if strings.HasPrefix(line, "Bcc:") || strings.HasPrefix(line, "X-Evil:") {
			t.Errorf("injected header line %q", line)
		}
	}
	if !strings.HasSuffix(msg, "<p>body</p>") {
		t.Errorf("body not appended: %q", msg)
	}
	if !strings.Contains(headers, "Reply-To: lead@example.comX-Evil: 2") {
		t.Errorf("Reply-To header missing or unsanitized:\n%s", headers)
	}
}

func TestBuildMIMEWithoutReplyTo(t *testing.T) {
	msg := buildMIME(&Message{To: "a@example.com", Subject: "Hi", HTML: "x"}, "")
	if strings.Contains(msg, "Reply-To:") || strings.Contains(msg, "From:") {
		t.Errorf("unexpected optional headers:\n%s", msg)
	}
}

func TestSMTPMessageHeaders(t *testing.T) {
	p := NewSMTPProvider("smtp.example.com", 587, "", "", "alerts@example.com", "Tender Alerts", testLogger())
	m := p.message(&Message{
		To:      "leads@example.com",
		ReplyTo: "visitor@example.com",
		Subject: "[Contact] Hello",
		HTML:    "<p>hi</p>",
		Tag:     "contact",
	})

	tests := []struct {
		header string
		want   string
	}{
		{"To", "leads@example.com"},
		{"Reply-To", "visitor@example.com"},
		{"Subject", "[Contact] Hello"},
		{"X-Tag", "contact"},
	}
	for _, tt := range tests {
		got := m.GetHeader(tt.header)
		if len(got) != 1 || got[0] != tt.want {
			t.Errorf("header %s = %v, want %q", tt.header, got, tt.want)
		}
	}
}

func TestWelcomeBody(t *testing.T) {
	sender := New(NewMockProvider(testLogger()), testLogger(), "https://tenders.example.com", "leads@example.com")

	body := sender.formatWelcomeBody(&tender.Signup{Email: "a@example.com", Name: "<Asha>", Plan: "pro"})
	if !strings.Contains(body, "Hi &lt;Asha&gt;,") {
		t.Error("name should be escaped")
	}
	if !strings.Contains(body, `href="https://tenders.example.com/onboarding"`) {
		t.Error("missing onboarding link")
	}
	if !strings.Contains(body, "<strong>pro</strong>") {
		t.Error("missing plan")
	}

	anon := sender.formatWelcomeBody(&tender.Signup{Email: "a@example.com"})
	if !strings.Contains(anon, "Hi there,") {
		t.Error("missing fallback greeting")
	}
	if strings.Contains(anon, "Selected plan") {
		t.Error("plan line should be omitted when empty")
	}
}

func TestContactBodyEscapesMessage(t *testing.T) {
	sender := New(NewMockProvider(testLogger()), testLogger(), "", "leads@example.com")
	msg := &tender.ContactMessage{
		Name:    "Ravi",
		Email:   "ravi@example.com",
		Subject: "Pricing",
		Message: "<script>alert(1)</script>\nSecond line",
	}

	body := sender.formatContactBody(msg, "203.0.113.9")
	if strings.Contains(body, "<script>") {
		t.Error("message must be escaped")
	}
	if !strings.Contains(body, "&lt;script&gt;alert(1)&lt;/script&gt;\nSecond line") {
		t.Errorf("escaped message with line breaks not found in body:\n%s", body)
	}
	if !strings.Contains(body, "mailto:ravi@example.com") {
		t.Error("missing reply-to link")
	}
	if !strings.Contains(body, "203.0.113.9") {
		t.Error("missing sender ip")
	}
}

func TestSenderRoutesMessages(t *testing.T) {
	provider := NewMockProvider(testLogger())
	sender := New(provider, testLogger(), "https://tenders.example.com", "leads@example.com")
	ctx := context.Background()

	signup := &tender.Signup{Email: "new@example.com", Name: "New User"}
	if err := sender.SendWelcome(ctx, signup); err != nil {
		t.Fatalf("SendWelcome() error: %v", err)
	}
	if err := sender.NotifyLead(ctx, signup, "198.51.100.1"); err != nil {
		t.Fatalf("NotifyLead() error: %v", err)
	}
	if err := sender.RelayContact(ctx, &tender.ContactMessage{Email: "c@example.com", Message: "hi"}, "198.51.100.2"); err != nil {
		t.Fatalf("RelayContact() error: %v", err)
	}

	sent := provider.Sent()
	if len(sent) != 3 {
		t.Fatalf("sent %d messages, want 3", len(sent))
	}
	if sent[0].To != "new@example.com" {
		t.Errorf("welcome sent to %q", sent[0].To)
	}
	if sent[0].ReplyTo != "" || sent[0].Tag != "welcome" {
		t.Errorf("welcome message = %+v", sent[0])
	}
	if sent[1].To != "leads@example.com" || !strings.Contains(sent[1].Subject, "new@example.com") {
		t.Errorf("lead message = %+v", sent[1])
	}
	if sent[1].ReplyTo != "new@example.com" || sent[1].Tag != "lead" {
		t.Errorf("lead reply-to/tag = %q/%q", sent[1].ReplyTo, sent[1].Tag)
	}
	if sent[2].To != "leads@example.com" || sent[2].Subject != "[Contact] Contact form message" {
		t.Errorf("contact message = %+v", sent[2])
	}
	if sent[2].ReplyTo != "c@example.com" || sent[2].Tag != "contact" {
		t.Errorf("contact reply-to/tag = %q/%q", sent[2].ReplyTo, sent[2].Tag)
	}
}

func TestSenderWithoutInbox(t *testing.T) {
	sender := New(NewMockProvider(testLogger()), testLogger(), "", "")
	if err := sender.RelayContact(context.Background(), &tender.ContactMessage{Message: "hi"}, ""); err == nil {
		t.Error("RelayContact() without inbox should fail")
	}
}

func TestSenderPropagatesProviderError(t *testing.T) {
	provider := NewMockProvider(testLogger())
	provider.FailWith(errors.New("provider down"))
	sender := New(provider, testLogger(), "", "leads@example.com")

	if err := sender.SendWelcome(context.Background(), &tender.Signup{Email: "a@example.com"}); err == nil {
		t.Error("SendWelcome() should surface provider errors")
	}
}

func TestBrevoProviderRejects4xxWithoutRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("api-key") != "key-123" {
			t.Errorf("api-key header = %q", r.Header.Get("api-key"))
		}
		var req brevoSendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Sender.Email != "noreply@example.com" || len(req.To) != 1 || req.To[0].Email != "a@example.com" {
			t.Errorf("request = %+v", req)
		}
		http.Error(w, `{"code":"invalid_parameter"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	b := NewBrevoProvider("key-123", "noreply@example.com", "Tender Alerts", testLogger())
	b.endpoint = srv.URL

	if err := b.Send(context.Background(), &Message{To: "a@example.com", Subject: "Hi", HTML: "<p>hi</p>"}); err == nil {
		t.Fatal("Send() should fail on 400")
	}
	if calls != 1 {
		t.Errorf("brevo called %d times, want 1", calls)
	}
}

func TestBrevoProviderSendsReplyToAndTag(t *testing.T) {
	var got brevoSendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"messageId":"<1@brevo>"}`))
	}))
	defer srv.Close()

	b := NewBrevoProvider("key", "noreply@example.com", "", testLogger())
	b.endpoint = srv.URL
	msg := &Message{To: "leads@example.com", ReplyTo: "visitor@example.com", Subject: "Hi", HTML: "<p>hi</p>", Tag: "contact"}
	if err := b.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if got.ReplyTo == nil || got.ReplyTo.Email != "visitor@example.com" {
		t.Errorf("replyTo = %+v, want visitor@example.com", got.ReplyTo)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "contact" {
		t.Errorf("tags = %v, want [contact]", got.Tags)
	}
}

func TestBrevoProviderOmitsEmptyReplyTo(t *testing.T) {
	b := NewBrevoProvider("key", "noreply@example.com", "Tender Alerts", testLogger())
	data, err := b.payload(&Message{To: "a@example.com", Subject: "Hi", HTML: "x"})
	if err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"replyTo", "tags"} {
		if strings.Contains(string(data), field) {
			t.Errorf("payload %s should omit %s", data, field)
		}
	}
}
