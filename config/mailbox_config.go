package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// OAuth - Google
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Gmail API
	GmailEndpoint       string
	GmailRequestTimeout time.Duration // 0 = no per-call timeout

	// Session
	SessionSecret string
	SessionTTL    time.Duration
	FrontendURL   string

	// Redis (optional, OAuth state store)
	RedisURL string

	// Sync
	SyncInterval          time.Duration
	SyncFetchSize         int
	SyncDetailConcurrency int
	SyncWorkers           int
	ConfirmSender         string

	// Circuit breaker
	BreakerMaxFailures int
	BreakerOpenTimeout time.Duration

	// Rate limit (per client IP)
	RateLimitRPS   float64
	RateLimitBurst int

	// CORS
	AllowedOrigins []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("GOOGLE_REDIRECT_URL", "http://localhost:8080/api/v1/auth/callback")

	v.SetDefault("GMAIL_ENDPOINT", "")
	v.SetDefault("GMAIL_REQUEST_TIMEOUT_SEC", 0)

	v.SetDefault("SESSION_SECRET", "")
	v.SetDefault("SESSION_TTL_HOUR", 24)
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")

	v.SetDefault("REDIS_URL", "")

	v.SetDefault("SYNC_INTERVAL_SEC", 30)
	v.SetDefault("SYNC_FETCH_SIZE", 20)
	v.SetDefault("SYNC_DETAIL_CONCURRENCY", 0)
	v.SetDefault("SYNC_WORKERS", 8)
	v.SetDefault("CONFIRM_SENDER", "relayer@emailwallet.org")

	v.SetDefault("BREAKER_MAX_FAILURES", 5)
	v.SetDefault("BREAKER_OPEN_SEC", 30)

	v.SetDefault("RATE_LIMIT_RPS", 10.0)
	v.SetDefault("RATE_LIMIT_BURST", 20)

	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
}

// Load reads configuration from the environment. When CONFIG_FILE is set the
// file is read first and environment variables override it.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Port:        v.GetString("PORT"),
		Environment: v.GetString("ENV"),
		LogLevel:    v.GetString("LOG_LEVEL"),

		GoogleClientID:     v.GetString("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  v.GetString("GOOGLE_REDIRECT_URL"),

		GmailEndpoint:       v.GetString("GMAIL_ENDPOINT"),
		GmailRequestTimeout: time.Duration(v.GetInt("GMAIL_REQUEST_TIMEOUT_SEC")) * time.Second,

		SessionSecret: v.GetString("SESSION_SECRET"),
		SessionTTL:    time.Duration(v.GetInt("SESSION_TTL_HOUR")) * time.Hour,
		FrontendURL:   v.GetString("FRONTEND_URL"),

		RedisURL: v.GetString("REDIS_URL"),

		SyncInterval:          time.Duration(v.GetInt("SYNC_INTERVAL_SEC")) * time.Second,
		SyncFetchSize:         v.GetInt("SYNC_FETCH_SIZE"),
		SyncDetailConcurrency: v.GetInt("SYNC_DETAIL_CONCURRENCY"),
		SyncWorkers:           v.GetInt("SYNC_WORKERS"),
		ConfirmSender:         v.GetString("CONFIRM_SENDER"),

		BreakerMaxFailures: v.GetInt("BREAKER_MAX_FAILURES"),
		BreakerOpenTimeout: time.Duration(v.GetInt("BREAKER_OPEN_SEC")) * time.Second,

		RateLimitRPS:   v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst: v.GetInt("RATE_LIMIT_BURST"),

		AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
	}
}

func splitList(s string) []string {
	var items []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

// Validate checks settings that cannot fall back to a default.
func (c *Config) Validate() error {
	var errs []error
	if c.SyncInterval <= 0 {
		errs = append(errs, errors.New("SYNC_INTERVAL_SEC must be positive"))
	}
	if c.SyncFetchSize <= 0 {
		errs = append(errs, errors.New("SYNC_FETCH_SIZE must be positive"))
	}
	if c.SyncDetailConcurrency < 0 {
		errs = append(errs, errors.New("SYNC_DETAIL_CONCURRENCY must not be negative"))
	}
	if c.SyncWorkers <= 0 {
		errs = append(errs, errors.New("SYNC_WORKERS must be positive"))
	}
	if c.IsProduction() {
		if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
			errs = append(errs, errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required"))
		}
		if c.SessionSecret == "" {
			errs = append(errs, errors.New("SESSION_SECRET is required"))
		}
	}
	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
