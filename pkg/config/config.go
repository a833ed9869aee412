package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all environment-provided application configuration.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Stripe        StripeConfig
	Observability ObservabilityConfig
}

type ServerConfig struct {
	Port               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	RateLimitPerSecond int
	RateLimitBurst     int
}

type DatabaseConfig struct {
	URL string
}

// DSN returns the connection string used by both the pool and migrations.
func (d DatabaseConfig) DSN() string {
	return d.URL
}

// StripeConfig carries the processor credentials plus the static
// plan-to-price mapping. Price ids are opaque strings; no parsing beyond
// presence checks.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	PriceMonthly  string
	PriceYearly   string
	SiteURL       string
	TrialDays     int64
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	LogLevel       string
}

// Load reads configuration from the environment, honoring a local .env file
// when present. Only required values are validated; everything else falls
// back to a sensible default.
func Load() (*Config, error) {
	// Missing .env is fine in deployed environments.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:       getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout:    getDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RateLimitPerSecond: getInt("RATE_LIMIT_PER_SECOND", 50),
			RateLimitBurst:     getInt("RATE_LIMIT_BURST", 100),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Stripe: StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			PriceMonthly:  os.Getenv("STRIPE_PRICE_MONTHLY"),
			PriceYearly:   os.Getenv("STRIPE_PRICE_YEARLY"),
			SiteURL:       getEnv("SITE_URL", "http://localhost:3000"),
			TrialDays:     int64(getInt("STRIPE_TRIAL_DAYS", 0)),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getBool("METRICS_ENABLED", true),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
		},
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Stripe.SecretKey == "" {
		return nil, fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	if cfg.Stripe.WebhookSecret == "" {
		return nil, fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
