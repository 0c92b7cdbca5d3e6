package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env             string
	HTTPAddr        string
	DatabaseURL     string
	RedisURL        string
	RedisTLSSkip    bool
	JWTAccessSecret string
	CORSAllowAll    bool
	CORSOrigins     []string

	// Asynq worker settings for the sync batch queue.
	SyncQueueName   string
	SyncConcurrency int
	SyncMaxRetry    int
	SyncRetryDelay  time.Duration

	// Lease-lock settings for ad-hoc reconciliation.
	LeaseTTL  time.Duration
	LeaseWait time.Duration

	// SMTP settings for escalation ticket notifications.
	EmailEnabled     bool
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true") && smtpHost != ""

	syncRetryDelay, err := getDurationEnv("SYNC_RETRY_DELAY", "300s")
	if err != nil {
		return nil, err
	}
	leaseTTL, err := getDurationEnv("LEASE_TTL", "10s")
	if err != nil {
		return nil, err
	}
	leaseWait, err := getDurationEnv("LEASE_WAIT", "5s")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:             getEnv("APP_ENV", "development"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		RedisURL:        getEnv("REDIS_URL", ""),
		RedisTLSSkip:    strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		JWTAccessSecret: getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:    strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true"),
		CORSOrigins:     splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200")),

		SyncQueueName:   getEnv("SYNC_QUEUE_NAME", "sync"),
		SyncConcurrency: getIntEnv("SYNC_CONCURRENCY", 10),
		SyncMaxRetry:    getIntEnv("SYNC_MAX_RETRY", 5),
		SyncRetryDelay:  syncRetryDelay,

		LeaseTTL:  leaseTTL,
		LeaseWait: leaseWait,

		EmailEnabled:     emailEnabled,
		SMTPHost:         smtpHost,
		SMTPPort:         getIntEnv("SMTP_PORT", 587),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "FieldSync"),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}

	return cfg, nil
}

// GetJWTAccessSecret satisfies httpkit.JWTConfig.
func (c *Config) GetJWTAccessSecret() string {
	return c.JWTAccessSecret
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// getDurationEnv parses a duration variable. A malformed value is a
// startup failure, not a silent zero: a zero retry delay or lease TTL
// would change runtime behavior without anyone noticing.
func getDurationEnv(key, fallback string) (time.Duration, error) {
	value := getEnv(key, fallback)
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return d, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}
