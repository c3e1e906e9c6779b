package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  http_port: 9090\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.Server.HTTPPort)
	}
	if cfg.Server.GRPCPort != 50051 {
		t.Errorf("GRPCPort = %d, want 50051", cfg.Server.GRPCPort)
	}
	if cfg.Auth.Username != "admin" {
		t.Errorf("Auth.Username = %q, want admin", cfg.Auth.Username)
	}
	if cfg.Auth.AccessTokenTTL != time.Hour {
		t.Errorf("AccessTokenTTL = %v, want 1h", cfg.Auth.AccessTokenTTL)
	}
	if cfg.Catalog.Source != SourceMock {
		t.Errorf("Catalog.Source = %q, want mock", cfg.Catalog.Source)
	}
	if cfg.Catalog.FetchDelay != time.Second {
		t.Errorf("FetchDelay = %v, want 1s", cfg.Catalog.FetchDelay)
	}
	if cfg.Collection.DefaultPageSize != 10 {
		t.Errorf("DefaultPageSize = %d, want 10", cfg.Collection.DefaultPageSize)
	}
	if cfg.Auth.HashIterations != 3 {
		t.Errorf("HashIterations = %d, want 3", cfg.Auth.HashIterations)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PUMPFLEET_AUTH_USERNAME", "operator")
	t.Setenv("PUMPFLEET_CATALOG_FETCH_DELAY", "250ms")

	cfg, err := Load(writeConfig(t, "log:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Auth.Username != "operator" {
		t.Errorf("Auth.Username = %q, want operator", cfg.Auth.Username)
	}
	if cfg.Catalog.FetchDelay != 250*time.Millisecond {
		t.Errorf("FetchDelay = %v, want 250ms", cfg.Catalog.FetchDelay)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoad_InvalidSource(t *testing.T) {
	if _, err := Load(writeConfig(t, "catalog:\n  source: s3\n")); err == nil {
		t.Fatal("expected error for unknown catalog source")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5433, Database: "fleet", User: "u", Password: "p"}
	want := "postgres://u:p@db:5433/fleet?sslmode=disable"
	if got := db.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestGetJWTSecret(t *testing.T) {
	a := AuthConfig{JWTSecretEnv: "PUMPFLEET_TEST_SECRET"}

	t.Setenv("PUMPFLEET_TEST_SECRET", "")
	if a.IsProductionReady() {
		t.Error("dev fallback must not be production ready")
	}

	t.Setenv("PUMPFLEET_TEST_SECRET", "0123456789abcdef0123456789abcdef")
	if got := a.GetJWTSecret(); got != "0123456789abcdef0123456789abcdef" {
		t.Errorf("GetJWTSecret() = %q", got)
	}
	if !a.IsProductionReady() {
		t.Error("32-char secret should be production ready")
	}
}
