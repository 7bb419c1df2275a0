// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr       = ":8080"
	defaultAuthSecret     = "change-me-auth-secret"
	defaultAccessTTL      = "15m"
	defaultRefreshTTL     = "720h"
	defaultStoreTimeout   = "3s"
	defaultPurgeInterval  = "1h"
	defaultPurgeRetention = "720h"
	defaultReuseDetection = "true"
	defaultReuseGrace     = "10s"
	defaultLogLevel       = "info"
)

// Config is the runtime configuration of the API and its tools.
type Config struct {
	AppEnv             string
	HTTPAddr           string
	AuthSecret         string
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	RefreshTokenPepper string
	PostgresDSN        string
	RedisURL           string
	StoreTimeout       time.Duration
	PurgeInterval      time.Duration
	PurgeRetention     time.Duration
	ReuseDetection     bool
	ReuseGrace         time.Duration
	LogLevel           string
}

// Load reads a .env file when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		AppEnv:             strings.ToLower(strings.TrimSpace(getEnv("APP_ENV", "dev"))),
		HTTPAddr:           strings.TrimSpace(getEnv("HTTP_ADDR", defaultHTTPAddr)),
		AuthSecret:         strings.TrimSpace(getEnv("AUTH_SECRET", defaultAuthSecret)),
		RefreshTokenPepper: strings.TrimSpace(os.Getenv("REFRESH_TOKEN_PEPPER")),
		PostgresDSN:        strings.TrimSpace(os.Getenv("PG_DSN")),
		RedisURL:           strings.TrimSpace(os.Getenv("REDIS_URL")),
		ReuseDetection:     parseBoolEnv("REFRESH_REUSE_DETECTION", defaultReuseDetection),
		LogLevel:           strings.TrimSpace(getEnv("LOG_LEVEL", defaultLogLevel)),
	}

	durations := []struct {
		name     string
		fallback string
		dst      *time.Duration
	}{
		{"ACCESS_TTL", defaultAccessTTL, &cfg.AccessTTL},
		{"REFRESH_TTL", defaultRefreshTTL, &cfg.RefreshTTL},
		{"STORE_TIMEOUT", defaultStoreTimeout, &cfg.StoreTimeout},
		{"PURGE_INTERVAL", defaultPurgeInterval, &cfg.PurgeInterval},
		{"PURGE_RETENTION", defaultPurgeRetention, &cfg.PurgeRetention},
		{"REFRESH_REUSE_GRACE", defaultReuseGrace, &cfg.ReuseGrace},
	}
	for _, d := range durations {
		v, err := parseDurationEnv(d.name, d.fallback)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and production requirements.
func (c *Config) Validate() error {
	if c.AccessTTL <= 0 {
		return fmt.Errorf("ACCESS_TTL must be > 0")
	}
	if c.RefreshTTL <= 0 {
		return fmt.Errorf("REFRESH_TTL must be > 0")
	}
	if c.StoreTimeout < 0 {
		return fmt.Errorf("STORE_TIMEOUT must be >= 0")
	}
	if c.PurgeInterval < 0 {
		return fmt.Errorf("PURGE_INTERVAL must be >= 0")
	}
	if c.PurgeRetention < 0 {
		return fmt.Errorf("PURGE_RETENTION must be >= 0")
	}
	if c.ReuseGrace < 0 {
		return fmt.Errorf("REFRESH_REUSE_GRACE must be >= 0")
	}
	if c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET must not be empty")
	}
	if c.IsProduction() {
		if c.AuthSecret == defaultAuthSecret {
			return fmt.Errorf("in prod/release AUTH_SECRET must be set and not default")
		}
		if c.PostgresDSN == "" {
			return fmt.Errorf("in prod/release PG_DSN must be set")
		}
	}
	return nil
}

// IsProduction reports whether APP_ENV names a production-like environment.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "prod" || c.AppEnv == "production" || c.AppEnv == "release"
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
