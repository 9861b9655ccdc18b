// Package config loads server settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/mmynk/splitledger/internal/notify"
)

const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"

	devJWTSecret = "dev-secret-change-me"
)

// Config holds every setting the server reads at startup.
type Config struct {
	Port          int
	StoreDriver   string
	DBPath        string
	JWTSecret     string
	TokenDuration time.Duration
	LogLevel      string

	RateLimitRPS   float64
	RateLimitBurst int

	// Mail is nil unless SMTP_HOST is set.
	Mail *notify.MailConfig
}

// Load reads .env from the working directory, if present, then the
// environment. Variables already set in the environment win over .env.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	var errs []error
	cfg := &Config{
		StoreDriver: getEnv("STORE_DRIVER", DriverSQLite),
		DBPath:      getEnv("DB_PATH", "./data/ledger.db"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}
	cfg.Port = getInt("PORT", 8080, &errs)
	cfg.TokenDuration = getDuration("TOKEN_DURATION", 24*time.Hour, &errs)
	cfg.RateLimitRPS = getFloat("RATE_LIMIT_RPS", 5, &errs)
	cfg.RateLimitBurst = getInt("RATE_LIMIT_BURST", 10, &errs)

	if cfg.StoreDriver != DriverSQLite && cfg.StoreDriver != DriverMemory {
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverMemory, cfg.StoreDriver))
	}
	if cfg.JWTSecret == "" {
		slog.Warn("JWT_SECRET not set, using development secret")
		cfg.JWTSecret = devJWTSecret
	}

	if host := os.Getenv("SMTP_HOST"); host != "" {
		cfg.Mail = &notify.MailConfig{
			Host:     host,
			Port:     getInt("SMTP_PORT", 587, &errs),
			Username: os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASS"),
			From:     getEnv("SMTP_FROM", "splitledger@localhost"),
			BaseURL:  os.Getenv("PUBLIC_URL"),
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64, errs *[]error) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}
