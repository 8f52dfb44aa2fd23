package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"tender-notifier/pkg/tender"
)

type onboardingRequest struct {
	Profile     *tender.Profile          `json:"profile"`
	Preferences *tender.AlertPreferences `json:"preferences"`
}

func (s *Server) handleOnboarding(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, err := s.auth.subject(r)
	if err != nil {
		s.logger.Warn("Onboarding request rejected", "error", err, "ip", clientIP(r))
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if r.Method == http.MethodGet {
		s.getOnboarding(w, r, userID)
		return
	}
	s.postOnboarding(w, r, userID)
}

func (s *Server) getOnboarding(w http.ResponseWriter, r *http.Request, userID string) {
	profile, err := s.store.Profile(r.Context(), userID)
	if err != nil && !s.isNotFound(err) {
		s.logger.Error("Failed to load profile", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load onboarding data")
		return
	}
	prefs, err := s.store.Preferences(r.Context(), userID)
	if err != nil && !s.isNotFound(err) {
		s.logger.Error("Failed to load preferences", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load onboarding data")
		return
	}
	if profile == nil && prefs == nil {
		writeError(w, http.StatusNotFound, "No onboarding data saved")
		return
	}

	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"profile":     profile,
		"preferences": prefs,
	})
}

func (s *Server) postOnboarding(w http.ResponseWriter, r *http.Request, userID string) {
	r.Body = http.MaxBytesReader(w, r.Body, 256<<10)

	var req onboardingRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeErrorDetails(w, http.StatusBadRequest, "Invalid onboarding payload", []string{err.Error()})
		return
	}

	var details []string
	if req.Profile == nil {
		details = append(details, "profile: required")
	}
	if req.Preferences == nil {
		details = append(details, "preferences: required")
	}
	if req.Profile != nil {
		details = appendValidation(details, req.Profile.Validate())
	}
	if req.Preferences != nil {
		req.Preferences.Normalize()
		details = appendValidation(details, req.Preferences.Validate())
	}
	if len(details) > 0 {
		writeErrorDetails(w, http.StatusBadRequest, "Invalid onboarding payload", details)
		return
	}

	now := s.now()
	req.Profile.UserID = userID
	req.Profile.UpdatedAt = now
	req.Preferences.UserID = userID
	req.Preferences.UpdatedAt = now

	if err := s.store.SaveProfile(r.Context(), req.Profile); err != nil {
		s.logger.Error("Failed to save profile", "user_id", userID, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.SavePreferences(r.Context(), req.Preferences); err != nil {
		s.logger.Error("Failed to save preferences", "user_id", userID, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("Onboarding saved",
		"user_id", userID,
		"keywords", len(req.Preferences.Keywords),
		"frequency", req.Preferences.Frequency)

	writeJSON(w, s.logger, http.StatusOK, map[string]bool{"ok": true})
}

func appendValidation(details []string, err error) []string {
	if err == nil {
		return details
	}
	var verrs tender.ValidationErrors
	if errors.As(err, &verrs) {
		return append(details, verrs...)
	}
	return append(details, err.Error())
}
