package config

import (
	"os"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SERVER_PORT")
	unsetEnvWithCleanup(t, "PAYSCRIBE_ENV")
	unsetEnvWithCleanup(t, "DEPOSIT_EVENT_EXCHANGE")
	unsetEnvWithCleanup(t, "WEBHOOK_RATE_LIMIT_PER_MINUTE")
	unsetEnvWithCleanup(t, "VIRTUAL_ACCOUNT_EXPIRY_SCHEDULE")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8084" {
		t.Fatalf("expected default port 8084, got %q", cfg.ServerPort)
	}
	if cfg.PayscribeEnv != "sandbox" {
		t.Fatalf("expected default env sandbox, got %q", cfg.PayscribeEnv)
	}
	if cfg.DepositEventExchange != "hazpay.events" {
		t.Fatalf("expected default exchange hazpay.events, got %q", cfg.DepositEventExchange)
	}
	if cfg.WebhookRateLimitPerMinute != 120 {
		t.Fatalf("expected default rate limit 120, got %d", cfg.WebhookRateLimitPerMinute)
	}
	if cfg.ExpiryJobSchedule != "*/10 * * * *" {
		t.Fatalf("expected default expiry schedule, got %q", cfg.ExpiryJobSchedule)
	}
}

func TestLoadConfig_UsesDepositServiceInternalAPIKeyAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "INTERNAL_API_KEY")
	setEnvWithCleanup(t, "DEPOSIT_SERVICE_INTERNAL_API_KEY", "alias-only-key")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.InternalAPIKey != "alias-only-key" {
		t.Fatalf("expected InternalAPIKey from alias env var, got %q", cfg.InternalAPIKey)
	}
}

func TestLoadConfig_InternalAPIKeyTakesPrecedenceOverAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "INTERNAL_API_KEY", "primary-key")
	setEnvWithCleanup(t, "DEPOSIT_SERVICE_INTERNAL_API_KEY", "alias-key")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.InternalAPIKey != "primary-key" {
		t.Fatalf("expected InternalAPIKey to prioritize INTERNAL_API_KEY, got %q", cfg.InternalAPIKey)
	}
}

func TestLoadConfig_NegativeRateLimitDisablesLimiting(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "WEBHOOK_RATE_LIMIT_PER_MINUTE", "-5")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.WebhookRateLimitPerMinute != 0 {
		t.Fatalf("expected negative limit to be disabled, got %d", cfg.WebhookRateLimitPerMinute)
	}
}

func TestActivePayscribeAPIKey(t *testing.T) {
	cfg := Config{
		PayscribeEnv:        "sandbox",
		PayscribeAPIKey:     "sandbox-key",
		PayscribeAPIKeyProd: "prod-key",
	}
	if got := cfg.ActivePayscribeAPIKey(); got != "sandbox-key" {
		t.Fatalf("expected sandbox key, got %q", got)
	}

	cfg.PayscribeEnv = "production"
	if got := cfg.ActivePayscribeAPIKey(); got != "prod-key" {
		t.Fatalf("expected production key, got %q", got)
	}

	cfg.PayscribeAPIKeyProd = ""
	if got := cfg.ActivePayscribeAPIKey(); got != "sandbox-key" {
		t.Fatalf("expected fallback to the base key, got %q", got)
	}
}

func TestValidate_ReportsMissingRequiredConfig(t *testing.T) {
	cfg := Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation to fail with no config")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") || !strings.Contains(err.Error(), "PAYSCRIBE_SECRET_KEY") {
		t.Fatalf("expected both missing keys to be named, got %v", err)
	}

	cfg.DatabaseURL = "postgres://localhost/hazpay"
	cfg.PayscribeSecretKey = "whsec_test"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected validation to pass, got %v", err)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
