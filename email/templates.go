package email

import (
	"fmt"
	"strings"
	"time"

	"tender-notifier/pkg/tender"
)

const baseStyle = "body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 640px; margin: 0 auto; padding: 20px; background: #fff; }\n" +
	".header { border-bottom: 2px solid #1f6feb; padding-bottom: 10px; margin-bottom: 20px; }\n" +
	".content { margin: 15px 0; }\n" +
	".quote { background: #f6f8fa; padding: 16px; border-radius: 6px; white-space: pre-wrap; }\n" +
	".info { color: #6e7781; font-size: 0.9em; }\n" +
	".footer { margin-top: 30px; padding-top: 15px; border-top: 1px solid #ddd; font-size: 0.9em; color: #6e7781; }\n" +
	"a { color: #1f6feb; text-decoration: none; }\n" +
	"@media (prefers-color-scheme: dark) {\n" +
	"body { background: #0d1117; color: #e6edf3; }\n" +
	".quote { background: #161b22; }\n" +
	"a { color: #58a6ff; }\n" +
	"}\n"

func writeHead(b *strings.Builder, title string) {
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	b.WriteString(fmt.Sprintf("<title>%s</title>\n", escapeHTML(title)))
	b.WriteString("<style>\n")
	b.WriteString(baseStyle)
	b.WriteString("</style>\n</head>\n<body>\n")
}

func (s *Sender) formatWelcomeBody(signup *tender.Signup) string {
	var b strings.Builder
	writeHead(&b, "Welcome to TenderAlert")

	name := signup.Name
	if name == "" {
		name = "there"
	}

	b.WriteString("<div class=\"header\">\n<h2>Welcome to TenderAlert</h2>\n</div>\n")
	b.WriteString("<div class=\"content\">\n")
	b.WriteString(fmt.Sprintf("<p>Hi %s,</p>\n", escapeHTML(name)))
	b.WriteString("<p>Thanks for signing up. We'll match new government tenders against your keywords and send you the ones worth bidding on.</p>\n")
	if signup.Plan != "" {
		b.WriteString(fmt.Sprintf("<p>Selected plan: <strong>%s</strong></p>\n", escapeHTML(signup.Plan)))
	}
	b.WriteString(fmt.Sprintf("<p><a href=\"%s/onboarding\">Set up your alert preferences</a></p>\n", escapeHTML(s.baseURL)))
	b.WriteString("</div>\n")

	b.WriteString("<div class=\"footer\">\n")
	b.WriteString(fmt.Sprintf("<a href=\"%s\">TenderAlert</a>\n", escapeHTML(s.baseURL)))
	b.WriteString("</div>\n")
	b.WriteString("</body>\n</html>")
	return b.String()
}

func (s *Sender) formatLeadBody(signup *tender.Signup, ip string) string {
	var b strings.Builder
	writeHead(&b, "New signup")

	b.WriteString("<div class=\"header\">\n<h2>New signup</h2>\n</div>\n")
	b.WriteString("<div class=\"content\">\n<ul>\n")
	b.WriteString(fmt.Sprintf("<li>Email: <a href=\"mailto:%s\">%s</a></li>\n", escapeHTML(signup.Email), escapeHTML(signup.Email)))
	writeField(&b, "Name", signup.Name)
	writeField(&b, "Company", signup.Company)
	writeField(&b, "Plan", signup.Plan)
	b.WriteString("</ul>\n</div>\n")

	b.WriteString("<div class=\"info\">\n")
	b.WriteString(fmt.Sprintf("<p>Received %s from %s</p>\n", time.Now().UTC().Format("Jan 2, 2006 at 3:04 PM UTC"), escapeHTML(ip)))
	b.WriteString("</div>\n")
	b.WriteString("</body>\n</html>")
	return b.String()
}

func (s *Sender) formatContactBody(msg *tender.ContactMessage, ip string) string {
	var b strings.Builder
	writeHead(&b, "Contact form message")

	b.WriteString("<div class=\"header\">\n<h2>Contact form message</h2>\n</div>\n")
	b.WriteString("<div class=\"content\">\n<ul>\n")
	writeField(&b, "Name", msg.Name)
	b.WriteString(fmt.Sprintf("<li>Reply to: <a href=\"mailto:%s\">%s</a></li>\n", escapeHTML(msg.Email), escapeHTML(msg.Email)))
	writeField(&b, "Subject", msg.Subject)
	b.WriteString("</ul>\n")
	b.WriteString("<div class=\"quote\">")
	b.WriteString(escapeHTML(msg.Message))
	b.WriteString("</div>\n</div>\n")

	b.WriteString("<div class=\"info\">\n")
	b.WriteString(fmt.Sprintf("<p>Sent from %s</p>\n", escapeHTML(ip)))
	b.WriteString("</div>\n")
	b.WriteString("</body>\n</html>")
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	b.WriteString(fmt.Sprintf("<li>%s: %s</li>\n", label, escapeHTML(value)))
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&#39;")
	return s
}
