// Package server handles HTTP endpoints and request routing.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tender-notifier/cache"
	"tender-notifier/metrics"
	"tender-notifier/pkg/tender"
	"tender-notifier/refresh"
)

// Store is the persistence the handlers read and write.
type Store interface {
	Snapshot(ctx context.Context) (*tender.Snapshot, error)
	Profile(ctx context.Context, userID string) (*tender.Profile, error)
	SaveProfile(ctx context.Context, p *tender.Profile) error
	Preferences(ctx context.Context, userID string) (*tender.AlertPreferences, error)
	SavePreferences(ctx context.Context, p *tender.AlertPreferences) error
}

// Refresher runs the refresh pipeline.
type Refresher interface {
	Run(ctx context.Context) (*refresh.Result, error)
}

// Emailer relays lead emails.
type Emailer interface {
	SendWelcome(ctx context.Context, signup *tender.Signup) error
	NotifyLead(ctx context.Context, signup *tender.Signup, ip string) error
	RelayContact(ctx context.Context, msg *tender.ContactMessage, ip string) error
}

// IsNotFound checks if an error is a not found error.
type IsNotFound func(error) bool

// Server handles HTTP requests.
type Server struct {
	cache      cache.Store
	store      Store
	refresher  Refresher
	emailer    Emailer
	limiter    Limiter
	auth       *tokenVerifier
	logger     *slog.Logger
	isNotFound IsNotFound
	cronSecret string
	now        func() time.Time
}

// Config holds server configuration.
type Config struct {
	Cache      cache.Store
	Store      Store
	Refresher  Refresher
	Emailer    Emailer
	Limiter    Limiter // defaults to an in-memory 5 per hour limiter
	Logger     *slog.Logger
	IsNotFound IsNotFound
	CronSecret string
	JWTSecret  string
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewMemoryLimiter(5, time.Hour)
	}
	return &Server{
		cache:      cfg.Cache,
		store:      cfg.Store,
		refresher:  cfg.Refresher,
		emailer:    cfg.Emailer,
		limiter:    limiter,
		auth:       newTokenVerifier(cfg.JWTSecret),
		logger:     cfg.Logger,
		isNotFound: cfg.IsNotFound,
		cronSecret: cfg.CronSecret,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/tenders-cache", s.handleTendersCache)
	mux.HandleFunc("/cron/auto-refresh", s.handleAutoRefresh)
	mux.HandleFunc("/tenders", s.handleTenders)
	mux.HandleFunc("/tender-stats", s.handleTenderStats)
	mux.HandleFunc("/onboarding", s.handleOnboarding)
	mux.HandleFunc("/signup", s.handleSignup)
	mux.HandleFunc("/contact", s.handleContact)
	mux.Handle("/metrics", metrics.Handler())

	return withRequestID(s.withRequestLog(s.withRecover(mux)))
}

// Run serves on port until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, port string) error {
	// Configure server with timeouts to prevent resource exhaustion
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadTimeout:       30 * time.Second,  // Cache POSTs carry full tender lists
		WriteTimeout:      120 * time.Second, // Refresh waits on the upstream API
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "port", port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"service": "tender-notifier",
		"endpoints": []string{
			"GET /tenders?query=&page=&limit=",
			"GET|POST /tenders-cache",
			"GET|POST /tender-stats",
			"GET|POST /cron/auto-refresh",
			"GET|POST /onboarding",
			"POST /signup",
			"POST /contact",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "healthy"})
}
