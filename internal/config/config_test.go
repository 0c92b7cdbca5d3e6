package config

import (
	"strings"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/fieldsync_test")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("JWT_ACCESS_SECRET", "test-secret")
}

func TestLoadDurationDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LeaseTTL.Seconds() != 10 || cfg.LeaseWait.Seconds() != 5 {
		t.Errorf("lease durations = %v/%v, want 10s/5s", cfg.LeaseTTL, cfg.LeaseWait)
	}
	if cfg.SyncRetryDelay.Seconds() != 300 {
		t.Errorf("retry delay = %v, want 300s", cfg.SyncRetryDelay)
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LEASE_TTL", "ten seconds")

	_, err := Load()
	if err == nil {
		t.Fatal("Load accepted a malformed LEASE_TTL")
	}
	if !strings.Contains(err.Error(), "LEASE_TTL") {
		t.Errorf("err = %v, want the offending variable named", err)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load accepted an empty DATABASE_URL")
	}
}
