package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func baseViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for k, val := range map[string]string{
		"APP_ENV":      "dev",
		"APP_PORT":     "8080",
		"DB_USER":      "app",
		"DB_HOST":      "127.0.0.1",
		"DB_PORT":      "3306",
		"DB_NAME":      "groupshare",
		"JWT_SECRET":   "s3cret",
		"APP_BASE_URL": "https://groupshare.example/",
	} {
		v.Set(k, val)
	}
	return v
}

func TestFromViperDefaults(t *testing.T) {
	cfg, err := FromViper(baseViper())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.AppBaseURL != "https://groupshare.example" {
		t.Fatalf("base url not trimmed: %q", cfg.AppBaseURL)
	}
	if cfg.AccessTokenTTL != 30*time.Minute || cfg.HoldTTL != 15*time.Minute || cfg.DisputeWindow != 72*time.Hour {
		t.Fatalf("unexpected durations: ttl=%s hold=%s dispute=%s", cfg.AccessTokenTTL, cfg.HoldTTL, cfg.DisputeWindow)
	}
	if cfg.NotificationQueue != "notifications.created" {
		t.Fatalf("unexpected queue: %q", cfg.NotificationQueue)
	}
	if !cfg.Cache.Methods["GET"] || cfg.Cache.KeyStrategy != "path_query" {
		t.Fatalf("unexpected cache config: %+v", cfg.Cache)
	}
	if cfg.PaymentGatewayURL != "" {
		t.Fatalf("gateway should default to the sandbox, got %q", cfg.PaymentGatewayURL)
	}
}

func TestFromViperReportsAllMissing(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	_, err := FromViper(v)
	if err == nil {
		t.Fatal("expected error for empty environment")
	}
	for _, key := range []string{"APP_ENV", "DB_HOST", "JWT_SECRET", "APP_BASE_URL"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not name %s", err, key)
		}
	}
}

func TestFromViperOverrides(t *testing.T) {
	v := baseViper()
	v.Set("PURCHASE_HOLD_TTL", "-5m")
	v.Set("PAYMENT_GATEWAY_URL", "https://pay.example/v1/")
	v.Set("RATE_LIMIT_BURST", 7)

	cfg, err := FromViper(v)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HoldTTL != 0 {
		t.Fatalf("negative hold ttl should clamp to 0, got %s", cfg.HoldTTL)
	}
	if cfg.PaymentGatewayURL != "https://pay.example/v1" {
		t.Fatalf("gateway url not trimmed: %q", cfg.PaymentGatewayURL)
	}
	if cfg.RateLimit.Capacity != 7 {
		t.Fatalf("burst should override capacity, got %d", cfg.RateLimit.Capacity)
	}
}

func TestFromViperRejectsLongHashKey(t *testing.T) {
	v := baseViper()
	v.Set("TOKEN_HASH_KEY", strings.Repeat("k", 65))
	if _, err := FromViper(v); err == nil {
		t.Fatal("expected error for a 65-byte hash key")
	}
}

func TestDSN(t *testing.T) {
	cfg, err := FromViper(baseViper())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	want := "app@tcp(127.0.0.1:3306)/groupshare?charset=utf8mb4&parseTime=true&loc=UTC"
	if got := cfg.DSN(); got != want {
		t.Fatalf("DSN = %q, want %q", got, want)
	}
	cfg.DBPass = "pw"
	if got := cfg.DSN(); !strings.HasPrefix(got, "app:pw@tcp(") {
		t.Fatalf("DSN with password = %q", got)
	}
}
