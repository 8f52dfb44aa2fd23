// Package main implements a Cloud Run service that serves tender listings,
// keeps a shared tender cache warm and captures onboarding and sales leads.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"tender-notifier/cache"
	"tender-notifier/config"
	"tender-notifier/email"
	"tender-notifier/poll"
	"tender-notifier/refresh"
	"tender-notifier/server"
	"tender-notifier/storage"
	"tender-notifier/tendersource"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := config.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Service failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, closeStore, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var (
		tenderCache cache.Store
		limiter     server.Limiter
	)
	if cfg.Redis.URL != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("Failed to close redis client", "error", err)
			}
		}()
		tenderCache = cache.NewRedis(rdb, cfg.Redis.Prefix, logger)
		limiter = server.NewRedisLimiter(rdb, cfg.Redis.Prefix+":ratelimit", cfg.RateLimitHour, time.Hour)
		logger.Info("Using Redis for tender cache and rate limiting", "prefix", cfg.Redis.Prefix)
	} else {
		tenderCache = cache.NewMemory()
		limiter = server.NewMemoryLimiter(cfg.RateLimitHour, time.Hour)
		logger.Info("Using in-process tender cache (not shared across instances)")
	}

	provider, err := newEmailProvider(ctx, cfg, logger)
	if err != nil {
		return err
	}
	sender := email.New(provider, logger, cfg.BaseURL, cfg.Email.LeadsInbox)

	source := tendersource.New(&http.Client{Timeout: 90 * time.Second}, cfg.TenderAPIURL, logger)

	var publisher refresh.Publisher
	if cfg.SiteURL != "" {
		publisher = refresh.NewHTTPPublisher(&http.Client{Timeout: 30 * time.Second}, cfg.SiteURL, logger)
		logger.Info("Refresh publishes over HTTP", "site_url", cfg.SiteURL)
	} else {
		publisher = refresh.NewLocalPublisher(tenderCache)
	}
	orchestrator := refresh.New(source, publisher, logger)

	if cfg.RefreshSchedule != "" {
		scheduler := poll.New(orchestrator, cfg.RefreshSchedule, logger)
		if err := scheduler.Start(ctx, true); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	if cfg.CronSecret == "" {
		logger.Warn("CRON_SECRET not set, /cron/auto-refresh will reject every request")
	}
	if cfg.JWTSecret == "" {
		logger.Warn("AUTH_JWT_SECRET not set, /onboarding will reject every request")
	}

	srv := server.New(&server.Config{
		Cache:      tenderCache,
		Store:      store,
		Refresher:  orchestrator,
		Emailer:    sender,
		Limiter:    limiter,
		Logger:     logger,
		IsNotFound: storage.IsNotFound,
		CronSecret: cfg.CronSecret,
		JWTSecret:  cfg.JWTSecret,
	})
	return srv.Run(ctx, cfg.Port)
}

func newEmailProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (email.Provider, error) {
	ec := cfg.Email
	switch ec.Provider {
	case config.ProviderBrevo:
		return email.NewBrevoProvider(ec.BrevoAPIKey, ec.From, ec.FromName, logger), nil
	case config.ProviderSMTP:
		return email.NewSMTPProvider(ec.SMTPHost, ec.SMTPPort, ec.SMTPUser, ec.SMTPPass, ec.From, ec.FromName, logger), nil
	case config.ProviderGmail:
		svc, err := initGmailService(ctx, ec.GoogleCredentials)
		if err != nil {
			if cfg.IsLocal() {
				logger.Warn("Failed to initialize Gmail service, using mock email", "error", err)
				return email.NewMockProvider(logger), nil
			}
			return nil, fmt.Errorf("init gmail: %w", err)
		}
		return email.NewGmailProvider(svc, ec.FromName, logger), nil
	default:
		logger.Info("Mock email mode enabled")
		return email.NewMockProvider(logger), nil
	}
}

func initGmailService(ctx context.Context, credsJSON string) (*gmail.Service, error) {
	// Explicit credentials first (local development or a dedicated sender account)
	if credsJSON != "" {
		return gmail.NewService(ctx, option.WithCredentialsJSON([]byte(credsJSON)))
	}

	// On Cloud Run the service account's Application Default Credentials are used
	if isCloudRun(ctx) {
		return gmail.NewService(ctx)
	}

	return nil, errors.New("GOOGLE_CREDENTIALS_JSON required when not running in Cloud Run")
}

// isCloudRun checks if we're running in a GCP environment by querying the metadata server.
func isCloudRun(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://metadata.google.internal/computeMetadata/v1/project/project-id", http.NoBody)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata-Flavor", "Google")

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode == http.StatusOK
}
