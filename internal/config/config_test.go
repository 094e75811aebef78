package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Cache.Kind != "memory" || cfg.Cache.Prefix != "wv" {
		t.Fatalf("cache defaults = %+v", cfg.Cache)
	}
	if cfg.Session.CookieName != "wv_sid" {
		t.Fatalf("cookie = %q", cfg.Session.CookieName)
	}
	if cfg.SessionTTL() != 12*time.Hour || cfg.SessionAbsoluteTTL() != 24*time.Hour {
		t.Fatalf("session ttls = %v / %v", cfg.SessionTTL(), cfg.SessionAbsoluteTTL())
	}
	if cfg.SSO.CodeTTL != 5*time.Minute {
		t.Fatalf("code ttl = %v", cfg.SSO.CodeTTL)
	}
}

func TestLoad_YAMLAndEnvOverride(t *testing.T) {
	p := writeConfig(t, `
app:
  env: dev
server:
  addr: ":9000"
cache:
  kind: memory
session:
  ttl: 6h
`)
	t.Setenv("SERVER_ADDR", ":9999")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Fatalf("env must override yaml: %q", cfg.Server.Addr)
	}
	if cfg.SessionTTL() != 6*time.Hour {
		t.Fatalf("ttl = %v", cfg.SessionTTL())
	}
}

func TestLoad_ProdForcesSecureCookies(t *testing.T) {
	p := writeConfig(t, `
app:
  env: prod
session:
  secure: false
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if !cfg.Session.Secure {
		t.Fatal("prod must force secure cookies")
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	t.Run("redis without host", func(t *testing.T) {
		p := writeConfig(t, "cache:\n  kind: redis\n")
		if _, err := Load(p); err == nil {
			t.Fatal("want validation error")
		}
	})

	t.Run("keycloak without realm", func(t *testing.T) {
		p := writeConfig(t, "keycloak:\n  base_url: https://id.example.com\n")
		if _, err := Load(p); err == nil {
			t.Fatal("want validation error")
		}
	})

	t.Run("bad session ttl", func(t *testing.T) {
		p := writeConfig(t, "session:\n  ttl: banana\n")
		if _, err := Load(p); err == nil {
			t.Fatal("want duration parse error")
		}
	})
}
