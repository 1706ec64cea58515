package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_FileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "api.yaml")
	contents := `
http:
  addr: ":9090"
database:
  url: "postgres://file/db"
auth:
  jwt_secret: "file-secret"
  token_ttl: 1h
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("TOKEN_TTL", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Database.URL != "postgres://env/db" {
		t.Fatalf("expected env to override file, got %q", cfg.Database.URL)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("expected file addr, got %q", cfg.HTTP.Addr)
	}
	if cfg.Auth.JWTSecret != "file-secret" {
		t.Fatalf("expected file secret, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Fatalf("expected 1h ttl, got %s", cfg.Auth.TokenTTL)
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env-only/db")
	t.Setenv("JWT_SECRET", "env-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("expected default addr, got %q", cfg.HTTP.Addr)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Fatalf("expected default ttl, got %s", cfg.Auth.TokenTTL)
	}
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "secret")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for missing database url")
	}
}
