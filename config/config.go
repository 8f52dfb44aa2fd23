// Package config loads service configuration from an optional YAML file and
// the environment. Environment variables always win over the file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort          = "8080"
	defaultLocalAPIURL   = "http://localhost:8000"
	defaultHostedAPIURL  = "https://tender-api.tendernotify.in"
	defaultLocalStorage  = "./data"
	defaultRedisPrefix   = "tenders"
	defaultSMTPPort      = 587
	defaultMailFromName  = "Tender Notify"
	defaultRateLimitHour = 5
)

// Email providers.
const (
	ProviderBrevo = "brevo"
	ProviderGmail = "gmail"
	ProviderSMTP  = "smtp"
	ProviderMock  = "mock"
)

// Config is the resolved service configuration.
type Config struct {
	Env             string `yaml:"env"`
	Port            string `yaml:"port"`
	LogLevel        string `yaml:"log_level"`
	BaseURL         string `yaml:"base_url"`
	SiteURL         string `yaml:"site_url"` // refresh publishes over HTTP when set
	TenderAPIURL    string `yaml:"tender_api_url"`
	CronSecret      string `yaml:"cron_secret"`
	RefreshSchedule string `yaml:"refresh_schedule"`
	JWTSecret       string `yaml:"auth_jwt_secret"`
	RateLimitHour   int    `yaml:"rate_limit_per_hour"`

	Storage StorageConfig `yaml:"storage"`
	Redis   RedisConfig   `yaml:"redis"`
	Email   EmailConfig   `yaml:"email"`
}

// StorageConfig selects the snapshot and onboarding backend.
// DatabaseURL wins, then Bucket, then LocalPath.
type StorageConfig struct {
	DatabaseURL string `yaml:"database_url"`
	Bucket      string `yaml:"bucket"`
	LocalPath   string `yaml:"local_path"`
}

// RedisConfig enables the shared cache and rate limiter when URL is set.
type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// EmailConfig selects and configures the email provider.
type EmailConfig struct {
	Provider          string `yaml:"provider"`
	BrevoAPIKey       string `yaml:"brevo_api_key"`
	GoogleCredentials string `yaml:"google_credentials_json"`
	SMTPHost          string `yaml:"smtp_host"`
	SMTPPort          int    `yaml:"smtp_port"`
	SMTPUser          string `yaml:"smtp_user"`
	SMTPPass          string `yaml:"smtp_pass"`
	From              string `yaml:"from"`
	FromName          string `yaml:"from_name"`
	LeadsInbox        string `yaml:"leads_inbox"`
}

// Load reads path (if non-empty) then applies environment overrides,
// defaults and validation.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Env, "APP_ENV")
	setString(&cfg.Port, "PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.BaseURL, "BASE_URL")
	setString(&cfg.SiteURL, "SITE_URL")
	setString(&cfg.TenderAPIURL, "TENDER_API_URL")
	setString(&cfg.CronSecret, "CRON_SECRET")
	setString(&cfg.RefreshSchedule, "REFRESH_SCHEDULE")
	setString(&cfg.JWTSecret, "AUTH_JWT_SECRET")
	setString(&cfg.Storage.DatabaseURL, "DATABASE_URL")
	setString(&cfg.Storage.Bucket, "STORAGE_BUCKET")
	setString(&cfg.Storage.LocalPath, "LOCAL_STORAGE")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Redis.Prefix, "REDIS_PREFIX")
	setString(&cfg.Email.Provider, "EMAIL_PROVIDER")
	setString(&cfg.Email.BrevoAPIKey, "BREVO_API_KEY")
	setString(&cfg.Email.GoogleCredentials, "GOOGLE_CREDENTIALS_JSON")
	setString(&cfg.Email.SMTPHost, "SMTP_HOST")
	setString(&cfg.Email.SMTPUser, "SMTP_USER")
	setString(&cfg.Email.SMTPPass, "SMTP_PASS")
	setString(&cfg.Email.From, "MAIL_FROM")
	setString(&cfg.Email.FromName, "MAIL_FROM_NAME")
	setString(&cfg.Email.LeadsInbox, "LEADS_INBOX")

	if err := setInt(&cfg.Email.SMTPPort, "SMTP_PORT"); err != nil {
		return err
	}
	return setInt(&cfg.RateLimitHour, "RATE_LIMIT_PER_HOUR")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.TenderAPIURL == "" {
		if cfg.IsLocal() {
			cfg.TenderAPIURL = defaultLocalAPIURL
		} else {
			cfg.TenderAPIURL = defaultHostedAPIURL
		}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:" + cfg.Port
	}
	if cfg.RateLimitHour == 0 {
		cfg.RateLimitHour = defaultRateLimitHour
	}

	// Local development mode when no durable backend is named
	if cfg.Storage.DatabaseURL == "" && cfg.Storage.Bucket == "" && cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = defaultLocalStorage
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = defaultRedisPrefix
	}

	if cfg.Email.Provider == "" {
		cfg.Email.Provider = ProviderMock
	}
	cfg.Email.Provider = strings.ToLower(cfg.Email.Provider)
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaultSMTPPort
	}
	if cfg.Email.FromName == "" {
		cfg.Email.FromName = defaultMailFromName
	}
}

// IsLocal reports whether the service runs in local development mode.
func (c *Config) IsLocal() bool {
	return c.Env == "local" || c.Env == "development"
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	var errs []error

	urls := map[string]string{
		"BASE_URL":       c.BaseURL,
		"TENDER_API_URL": c.TenderAPIURL,
	}
	if c.SiteURL != "" {
		urls["SITE_URL"] = c.SiteURL
	}
	for name, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute http(s) URL", name))
		}
	}

	if n, err := strconv.Atoi(c.Port); err != nil || n < 1 || n > 65535 {
		errs = append(errs, errors.New("PORT must be a valid TCP port"))
	}
	if c.RateLimitHour < 1 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_HOUR must be positive"))
	}

	switch c.Email.Provider {
	case ProviderMock:
	case ProviderBrevo:
		if c.Email.BrevoAPIKey == "" {
			errs = append(errs, errors.New("BREVO_API_KEY required for brevo provider"))
		}
		if c.Email.From == "" {
			errs = append(errs, errors.New("MAIL_FROM required for brevo provider"))
		}
	case ProviderSMTP:
		if c.Email.SMTPHost == "" {
			errs = append(errs, errors.New("SMTP_HOST required for smtp provider"))
		}
		if c.Email.From == "" {
			errs = append(errs, errors.New("MAIL_FROM required for smtp provider"))
		}
	case ProviderGmail:
	default:
		errs = append(errs, fmt.Errorf("unknown EMAIL_PROVIDER %q", c.Email.Provider))
	}

	if !c.IsLocal() && c.Storage.LocalPath == "" && c.BaseURL == "http://localhost:"+c.Port {
		errs = append(errs, errors.New("BASE_URL required outside local mode (e.g., https://your-service.run.app)"))
	}

	return errors.Join(errs...)
}
