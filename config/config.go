// Package config loads service settings from the environment (and an optional .env file).
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port         string
	StoreDriver  string // postgres | sqlite | memory
	DatabaseURL  string
	SQLitePath   string
	ServiceToken string
	// AllowUnauthenticated skips the gateway token check when ServiceToken is empty.
	AllowUnauthenticated bool
	AllowedOrigins       []string

	DefaultLeaseDuration time.Duration
	MaxLeaseDuration     time.Duration
	ReclaimInterval      time.Duration
	ReclaimBatchSize     int
	ReadTimeReclaim      bool

	AuditArchiveEnabled  bool
	AuditArchiveInterval time.Duration
	R2                   R2Config
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
}

func (c R2Config) Configured() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.AccessKeySecret != "" && c.Bucket != ""
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from any key lookup; Load uses os.LookupEnv.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := &Config{
		Port:         get("PORT", "5300"),
		StoreDriver:  strings.ToLower(get("STORE_DRIVER", "postgres")),
		DatabaseURL:  get("DATABASE_URL", ""),
		SQLitePath:   get("SQLITE_PATH", "./data/bounties.db"),
		ServiceToken: get("ARBITRATION_SERVICE_TOKEN", ""),
		R2: R2Config{
			AccountID:       get("CLOUDFLARE_ACCOUNT_ID", ""),
			AccessKeyID:     get("R2_ACCESS_KEY_ID", ""),
			AccessKeySecret: get("R2_ACCESS_KEY_SECRET", ""),
			Bucket:          get("R2_BUCKET_NAME", ""),
		},
	}

	for _, origin := range strings.Split(get("ALLOWED_ORIGINS", "http://localhost:3000"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	var err error
	if cfg.AllowUnauthenticated, err = parseBool("ALLOW_UNAUTHENTICATED", get("ALLOW_UNAUTHENTICATED", "false")); err != nil {
		return nil, err
	}
	if cfg.ReadTimeReclaim, err = parseBool("READ_TIME_RECLAIM", get("READ_TIME_RECLAIM", "true")); err != nil {
		return nil, err
	}
	if cfg.AuditArchiveEnabled, err = parseBool("AUDIT_ARCHIVE_ENABLED", get("AUDIT_ARCHIVE_ENABLED", "false")); err != nil {
		return nil, err
	}
	if cfg.DefaultLeaseDuration, err = parseDuration("DEFAULT_LEASE_DURATION", get("DEFAULT_LEASE_DURATION", "168h")); err != nil {
		return nil, err
	}
	if cfg.MaxLeaseDuration, err = parseDuration("MAX_LEASE_DURATION", get("MAX_LEASE_DURATION", "720h")); err != nil {
		return nil, err
	}
	if cfg.ReclaimInterval, err = parseDuration("RECLAIM_INTERVAL", get("RECLAIM_INTERVAL", "1m")); err != nil {
		return nil, err
	}
	if cfg.AuditArchiveInterval, err = parseDuration("AUDIT_ARCHIVE_INTERVAL", get("AUDIT_ARCHIVE_INTERVAL", "24h")); err != nil {
		return nil, err
	}
	if cfg.ReclaimBatchSize, err = strconv.Atoi(get("RECLAIM_BATCH_SIZE", "200")); err != nil || cfg.ReclaimBatchSize <= 0 {
		return nil, fmt.Errorf("config: RECLAIM_BATCH_SIZE must be a positive integer")
	}

	if cfg.DefaultLeaseDuration > cfg.MaxLeaseDuration {
		return nil, fmt.Errorf("config: DEFAULT_LEASE_DURATION (%s) exceeds MAX_LEASE_DURATION (%s)", cfg.DefaultLeaseDuration, cfg.MaxLeaseDuration)
	}
	switch cfg.StoreDriver {
	case "postgres", "sqlite", "memory":
	default:
		return nil, fmt.Errorf("config: unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.StoreDriver == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL environment variable not set")
	}
	if cfg.AuditArchiveEnabled && !cfg.R2.Configured() {
		return nil, fmt.Errorf("config: AUDIT_ARCHIVE_ENABLED requires CLOUDFLARE_ACCOUNT_ID, R2_ACCESS_KEY_ID, R2_ACCESS_KEY_SECRET and R2_BUCKET_NAME")
	}
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive, got %s", key, raw)
	}
	return d, nil
}

func parseBool(key, raw string) (bool, error) {
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}
