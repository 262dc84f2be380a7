// Package config provides configuration loading and validation for the
// service. Everything is sourced from the environment; cmd loads a .env file
// first when one exists.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Config holds everything the service needs at startup. Classification
// thresholds live here rather than as literals because they are business
// tunables, not invariants.
type Config struct {
	// Upstream CRM.
	CRMBaseURL      string `validate:"required,url"`
	CRMTokenURL     string `validate:"required,url"`
	CRMClientID     string `validate:"required"`
	CRMClientSecret string `validate:"required"`
	CRMRefreshToken string `validate:"required"`

	// Cache store.
	DatabaseURL string `validate:"required"`

	// Sync behavior.
	WorkerCount int `validate:"gte=1,lte=64"`

	// Classification thresholds.
	StaleDays        int     `validate:"gte=1"`
	LegacyStaleDays  int     `validate:"gte=1"`
	LegacyAtRiskDays int     `validate:"gte=1"`
	NameMatch        float64 `validate:"gt=0,lte=1"`
	StrongNameMatch  float64 `validate:"gt=0,lte=1"`
}

// Load reads the configuration from environment variables, applies defaults,
// and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		CRMBaseURL:      os.Getenv("CRM_BASE_URL"),
		CRMTokenURL:     envDefault("CRM_TOKEN_URL", "https://accounts.zoho.com/oauth/v2/token"),
		CRMClientID:     os.Getenv("CRM_CLIENT_ID"),
		CRMClientSecret: os.Getenv("CRM_CLIENT_SECRET"),
		CRMRefreshToken: os.Getenv("CRM_REFRESH_TOKEN"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
	}

	var err error
	if cfg.WorkerCount, err = envInt("SYNC_WORKERS", 10); err != nil {
		return nil, err
	}
	if cfg.StaleDays, err = envInt("STALE_DAYS", 14); err != nil {
		return nil, err
	}
	if cfg.LegacyStaleDays, err = envInt("LEGACY_STALE_DAYS", 7); err != nil {
		return nil, err
	}
	if cfg.LegacyAtRiskDays, err = envInt("LEGACY_AT_RISK_DAYS", 5); err != nil {
		return nil, err
	}
	if cfg.NameMatch, err = envFloat("DELIVERY_NAME_MATCH", 0.60); err != nil {
		return nil, err
	}
	if cfg.StrongNameMatch, err = envFloat("DELIVERY_STRONG_NAME_MATCH", 0.90); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if c.NameMatch > c.StrongNameMatch {
		return fmt.Errorf("config error: DELIVERY_NAME_MATCH must not exceed DELIVERY_STRONG_NAME_MATCH")
	}
	return nil
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return f, nil
}
