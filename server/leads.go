package server

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"tender-notifier/pkg/tender"
)

const maxContactMessage = 5000

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Rate limiting by IP
	ip := clientIP(r)
	if !s.limiter.Allow(ip) {
		s.logger.Warn("Rate limit exceeded", "ip", ip, "path", r.URL.Path)
		writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 16<<10)
	var signup tender.Signup
	err := decodeBody(r, &signup, func(get func(string) string) {
		signup = tender.Signup{Email: get("email"), Name: get("name"), Company: get("company"), Plan: get("plan")}
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid signup data")
		return
	}

	signup.Email = strings.ToLower(strings.TrimSpace(signup.Email))
	signup.Name = strings.TrimSpace(signup.Name)
	signup.Company = strings.TrimSpace(signup.Company)
	signup.Plan = strings.TrimSpace(signup.Plan)
	if !isValidEmail(signup.Email) {
		writeError(w, http.StatusBadRequest, "Invalid email address")
		return
	}
	if len(signup.Name) > 200 || len(signup.Company) > 200 || len(signup.Plan) > 50 {
		writeError(w, http.StatusBadRequest, "Field too long")
		return
	}

	// The lead notification matters more than the welcome mail; neither
	// should outlive a slow client for long.
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	if err := s.emailer.SendWelcome(ctx, &signup); err != nil {
		s.logger.Warn("Failed to send welcome email", "email", signup.Email, "error", err)
	}
	if err := s.emailer.NotifyLead(ctx, &signup, ip); err != nil {
		s.logger.Error("Failed to relay signup", "email", signup.Email, "error", err)
	}

	s.logger.Info("Signup received", "email", signup.Email, "plan", signup.Plan, "ip", ip)
	writeJSON(w, s.logger, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ip := clientIP(r)
	if !s.limiter.Allow(ip) {
		s.logger.Warn("Rate limit exceeded", "ip", ip, "path", r.URL.Path)
		writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	var msg tender.ContactMessage
	err := decodeBody(r, &msg, func(get func(string) string) {
		msg = tender.ContactMessage{Name: get("name"), Email: get("email"), Subject: get("subject"), Message: get("message")}
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid contact data")
		return
	}

	msg.Email = strings.ToLower(strings.TrimSpace(msg.Email))
	msg.Name = strings.TrimSpace(msg.Name)
	msg.Subject = strings.TrimSpace(msg.Subject)
	msg.Message = strings.TrimSpace(msg.Message)
	if !isValidEmail(msg.Email) {
		writeError(w, http.StatusBadRequest, "Invalid email address")
		return
	}
	if n := utf8.RuneCountInString(msg.Message); n == 0 || n > maxContactMessage {
		writeError(w, http.StatusBadRequest, "Message must be between 1 and 5000 characters")
		return
	}
	if len(msg.Name) > 200 || len(msg.Subject) > 200 {
		writeError(w, http.StatusBadRequest, "Field too long")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	if err := s.emailer.RelayContact(ctx, &msg, ip); err != nil {
		s.logger.Error("Failed to relay contact message", "email", msg.Email, "error", err)
		writeError(w, http.StatusBadGateway, "Failed to send message")
		return
	}

	s.logger.Info("Contact message relayed", "email", msg.Email, "ip", ip)
	writeJSON(w, s.logger, http.StatusOK, map[string]bool{"ok": true})
}
