package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"CONFIG_FILE", "PORT", "SYNC_INTERVAL_SEC", "SYNC_FETCH_SIZE", "SYNC_WORKERS",
		"GMAIL_REQUEST_TIMEOUT_SEC", "CONFIRM_SENDER", "ALLOWED_ORIGINS"} {
		t.Setenv(key, "") // empty values are treated as unset
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.SyncInterval != 30*time.Second {
		t.Errorf("SyncInterval = %v", cfg.SyncInterval)
	}
	if cfg.SyncFetchSize != 20 {
		t.Errorf("SyncFetchSize = %d", cfg.SyncFetchSize)
	}
	if cfg.SyncWorkers != 8 {
		t.Errorf("SyncWorkers = %d", cfg.SyncWorkers)
	}
	if cfg.GmailRequestTimeout != 0 {
		t.Errorf("GmailRequestTimeout = %v, want none", cfg.GmailRequestTimeout)
	}
	if cfg.ConfirmSender != "relayer@emailwallet.org" {
		t.Errorf("ConfirmSender = %q", cfg.ConfirmSender)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SYNC_INTERVAL_SEC", "5")
	t.Setenv("GMAIL_REQUEST_TIMEOUT_SEC", "10")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SyncInterval != 5*time.Second {
		t.Errorf("SyncInterval = %v", cfg.SyncInterval)
	}
	if cfg.GmailRequestTimeout != 10*time.Second {
		t.Errorf("GmailRequestTimeout = %v", cfg.GmailRequestTimeout)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"development defaults", func(c *Config) {}, false},
		{"production without credentials", func(c *Config) { c.Environment = "production" }, true},
		{"production complete", func(c *Config) {
			c.Environment = "production"
			c.GoogleClientID = "id"
			c.GoogleClientSecret = "secret"
			c.SessionSecret = "s3cret"
		}, false},
		{"zero fetch size", func(c *Config) { c.SyncFetchSize = 0 }, true},
		{"zero workers", func(c *Config) { c.SyncWorkers = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Environment: "development", SyncInterval: 30 * time.Second, SyncFetchSize: 20, SyncWorkers: 8}
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
