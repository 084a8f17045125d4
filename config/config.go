// config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the runtime configuration, loaded once at startup.
type Config struct {
	Port           string
	DatabaseURL    string
	AuthSecret     string
	AllowedOrigins []string

	LogLevel string
	LogFile  string

	// StoreTimeout bounds every store round-trip made by the box engine.
	StoreTimeout           time.Duration
	CatalogRefreshInterval time.Duration

	ProfileSyncURL      string
	ProfileSyncToken    string
	ProfileSyncInterval time.Duration

	R2 R2Config
}

// R2Config holds Cloudflare R2 credentials for template images. Empty AccountID disables R2.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

// Enabled reports whether enough R2 settings are present to build a client.
func (r R2Config) Enabled() bool {
	return r.AccountID != "" && r.AccessKeyID != "" && r.AccessKeySecret != "" && r.Bucket != ""
}

// Load reads a .env file when present and then the process environment.
func Load() (*Config, bool, error) {
	dotenvLoaded := godotenv.Load() == nil
	cfg, err := FromEnv(os.Getenv)
	return cfg, dotenvLoaded, err
}

// FromEnv builds a Config from a lookup function so tests can supply their own environment.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:             valueOr(getenv("PORT"), "5200"),
		DatabaseURL:      strings.TrimSpace(getenv("DATABASE_URL")),
		AuthSecret:       valueOr(getenv("AUTH_SECRET"), getenv("NEXTAUTH_SECRET")),
		AllowedOrigins:   splitList(valueOr(getenv("ALLOWED_ORIGINS"), "http://localhost:3000")),
		LogLevel:         valueOr(getenv("LOG_LEVEL"), "info"),
		LogFile:          strings.TrimSpace(getenv("LOG_FILE")),
		ProfileSyncURL:   strings.TrimSpace(getenv("PROFILE_SYNC_URL")),
		ProfileSyncToken: strings.TrimSpace(getenv("PROFILE_SYNC_TOKEN")),
		R2: R2Config{
			AccountID:       strings.TrimSpace(getenv("CLOUDFLARE_ACCOUNT_ID")),
			AccessKeyID:     strings.TrimSpace(getenv("R2_ACCESS_KEY_ID")),
			AccessKeySecret: strings.TrimSpace(getenv("R2_ACCESS_KEY_SECRET")),
			Bucket:          strings.TrimSpace(getenv("R2_BUCKET_NAME")),
			CDNBaseURL:      strings.TrimRight(strings.TrimSpace(getenv("CDN_BASE_URL")), "/"),
		},
	}

	var err error
	if cfg.StoreTimeout, err = durationOr(getenv("STORE_TIMEOUT"), 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.CatalogRefreshInterval, err = durationOr(getenv("CATALOG_REFRESH_INTERVAL"), time.Minute); err != nil {
		return nil, err
	}
	if cfg.ProfileSyncInterval, err = durationOr(getenv("PROFILE_SYNC_INTERVAL"), time.Minute); err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL environment variable not set")
	}
	if strings.TrimSpace(cfg.AuthSecret) == "" {
		return nil, errors.New("AUTH_SECRET (or NEXTAUTH_SECRET) environment variable not set")
	}
	if cfg.ProfileSyncURL != "" && cfg.ProfileSyncToken == "" {
		return nil, errors.New("PROFILE_SYNC_TOKEN is required when PROFILE_SYNC_URL is set")
	}
	return cfg, nil
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(v)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// durationOr accepts Go durations ("30s") or a bare number of seconds.
func durationOr(raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("config: duration must be positive, got %q", raw)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: duration must be positive, got %q", raw)
	}
	return d, nil
}
