package config_test

import (
	"os"
	"testing"

	"github.com/scopekeeper/scopekeeper/internal/config"
)

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.RoleTable.Path != "roles.yaml" {
		t.Errorf("RoleTable.Path = %q, want roles.yaml", cfg.RoleTable.Path)
	}
}

func TestLoadReadsEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ROLE_TABLE_PATH", "/etc/scopekeeper/roles.yaml")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %q, want 9090", cfg.Server.Port)
	}
	if cfg.RoleTable.Path != "/etc/scopekeeper/roles.yaml" {
		t.Errorf("RoleTable.Path = %q, want override", cfg.RoleTable.Path)
	}
}

func TestValidateRejectsEmptyReloadPeriod(t *testing.T) {
	clearEnv(t)
	t.Setenv("ROLE_TABLE_RELOAD_PERIOD", "0s")

	if _, err := config.Load(); err == nil {
		t.Fatal("expected an error for a non-positive reload period")
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SERVER_HOST", "SERVER_PORT", "SERVER_READ_TIMEOUT", "SERVER_WRITE_TIMEOUT", "SERVER_IDLE_TIMEOUT",
		"ROLE_TABLE_PATH", "ROLE_TABLE_RELOAD_PERIOD",
		"LOG_LEVEL", "LOG_FORMAT", "OTEL_ENABLED", "OTEL_SERVICE_NAME", "OTEL_SERVICE_VERSION",
		"RATELIMIT_RPS", "RATELIMIT_BURST", "CERT_MAX_LIFETIME",
	} {
		os.Unsetenv(key)
	}
}
