package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "decider.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Server.Port != 8000 {
			t.Errorf("expected port 8000, got %d", cfg.Server.Port)
		}
		if cfg.External.CacheTTL != 30*time.Second {
			t.Errorf("expected cache_ttl 30s, got %v", cfg.External.CacheTTL)
		}
		if cfg.External.CacheBackend != "memory" {
			t.Errorf("expected cache_backend memory, got %s", cfg.External.CacheBackend)
		}
		if cfg.Auth.Mode != "jwt_only" {
			t.Errorf("expected auth mode jwt_only, got %s", cfg.Auth.Mode)
		}
		if len(cfg.Auth.Algorithms) != 1 || cfg.Auth.Algorithms[0] != "RS256" {
			t.Errorf("expected algorithms [RS256], got %v", cfg.Auth.Algorithms)
		}
		if cfg.Auth.JWKSCacheTTL != 300*time.Second {
			t.Errorf("expected jwks_cache_ttl 300s, got %v", cfg.Auth.JWKSCacheTTL)
		}
		if cfg.Metadata.BaseURL != "http://localhost:8000" {
			t.Errorf("expected metadata base url fallback, got %s", cfg.Metadata.BaseURL)
		}
		if cfg.Resolver.DefaultObjectTables["PURCHASE_ORDER"] != "po_headers" {
			t.Errorf("expected PURCHASE_ORDER -> po_headers, got %v", cfg.Resolver.DefaultObjectTables)
		}
	})

	t.Run("environment override", func(t *testing.T) {
		t.Setenv("DECIDER_SERVER_PORT", "9999")
		t.Setenv("DECIDER_SERVER_HOST", "127.0.0.1")

		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Server.Port != 9999 {
			t.Errorf("expected port 9999, got %d", cfg.Server.Port)
		}
		if cfg.Server.Host != "127.0.0.1" {
			t.Errorf("expected host 127.0.0.1, got %s", cfg.Server.Host)
		}
	})

	t.Run("legacy environment aliases", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://u:p@db/decider")
		t.Setenv("AUTH0_DOMAIN", "tenant.example")
		t.Setenv("AUTH0_CLIENT_ID", "fallback-id")
		t.Setenv("AUTH0_M2M_CLIENT_SECRET", "s3cret")
		t.Setenv("EXTERNAL_CACHE_TTL_SECONDS", "45")
		t.Setenv("AUTH_JWT_ALGORITHMS", "rs256, RS384")
		t.Setenv("BUSINESS_OBJECT_BASE_URL", "http://objects.internal")

		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Database.URL != "postgres://u:p@db/decider" {
			t.Errorf("expected DATABASE_URL alias, got %s", cfg.Database.URL)
		}
		if cfg.M2M.ClientID != "fallback-id" {
			t.Errorf("expected AUTH0_CLIENT_ID alias, got %s", cfg.M2M.ClientID)
		}
		if cfg.M2M.ClientSecret != "s3cret" {
			t.Errorf("expected client secret from env, got %q", cfg.M2M.ClientSecret)
		}
		if cfg.External.CacheTTL != 45*time.Second {
			t.Errorf("expected bare integer seconds, got %v", cfg.External.CacheTTL)
		}
		if cfg.Auth.Issuer != "https://tenant.example/" {
			t.Errorf("expected derived issuer, got %s", cfg.Auth.Issuer)
		}
		if cfg.Auth.JWKSURI != "https://tenant.example/.well-known/jwks.json" {
			t.Errorf("expected derived jwks uri, got %s", cfg.Auth.JWKSURI)
		}
		if len(cfg.Auth.Algorithms) != 2 || cfg.Auth.Algorithms[0] != "RS256" || cfg.Auth.Algorithms[1] != "RS384" {
			t.Errorf("expected [RS256 RS384], got %v", cfg.Auth.Algorithms)
		}
		if cfg.Metadata.BaseURL != "http://objects.internal" {
			t.Errorf("expected metadata base url to fall back to external base, got %s", cfg.Metadata.BaseURL)
		}
	})

	t.Run("prefixed name wins over alias", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "sqlite://alias.db")
		t.Setenv("DECIDER_DATABASE_URL", "sqlite://primary.db")

		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Database.URL != "sqlite://primary.db" {
			t.Errorf("expected DECIDER_DATABASE_URL to win, got %s", cfg.Database.URL)
		}
	})

	t.Run("service urls from file and env", func(t *testing.T) {
		t.Setenv("SERVICE_URL_ORDERS", "http://orders.env")
		path := writeConfig(t, `external:
  service_urls:
    orders: "http://orders.file"
    billing: "http://billing.file"
`)
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if got := cfg.External.ServiceURLs["ORDERS"]; got != "http://orders.env" {
			t.Errorf("expected env override for ORDERS, got %s", got)
		}
		if got := cfg.External.ServiceURLs["BILLING"]; got != "http://billing.file" {
			t.Errorf("expected file value for BILLING, got %s", got)
		}
	})

	t.Run("invalid port range", func(t *testing.T) {
		t.Setenv("DECIDER_SERVER_PORT", "70000")

		if _, err := LoadConfig(""); err == nil {
			t.Error("expected error for port > 65535")
		}
	})

	t.Run("invalid negative values", func(t *testing.T) {
		t.Setenv("DECIDER_DATABASE_MAX_OPEN_CONNS", "-1")

		if _, err := LoadConfig(""); err == nil {
			t.Error("expected error for negative max_open_conns")
		}
	})

	t.Run("redis backend requires url", func(t *testing.T) {
		t.Setenv("DECIDER_EXTERNAL_CACHE_BACKEND", "redis")

		if _, err := LoadConfig(""); err == nil {
			t.Error("expected error for redis backend without redis_url")
		}
	})

	t.Run("invalid duration", func(t *testing.T) {
		t.Setenv("DECIDER_EXTERNAL_TIMEOUT", "soon")

		if _, err := LoadConfig(""); err == nil {
			t.Error("expected error for unparseable duration")
		}
	})
}

func TestLoadConfig_RejectsSecretsInFile(t *testing.T) {
	path := writeConfig(t, `m2m:
  client_id: "abc"
  client_secret: "should_be_rejected"
`)
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for secret in config file")
	}
	want := "m2m.client_secret not allowed in config files (use DECIDER_M2M_CLIENT_SECRET or AUTH0_M2M_CLIENT_SECRET environment variable)"
	if err.Error() != want {
		t.Errorf("wrong error message: %v", err)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	t.Setenv("DECIDER_SERVER_PORT", "8080")
	path := writeConfig(t, `server:
  port: 9090
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("environment should override config file, expected 8080, got %d", cfg.Server.Port)
	}
}

func TestServiceURLsFromEnv(t *testing.T) {
	got := ServiceURLsFromEnv([]string{
		"SERVICE_URL_orders=http://orders",
		"SERVICE_URL_EMPTY=",
		"SERVICE_URL_=http://nameless",
		"OTHER=x",
	})
	if len(got) != 1 || got["ORDERS"] != "http://orders" {
		t.Errorf("ServiceURLsFromEnv() = %v, want only ORDERS", got)
	}
}

func TestDeriveIssuer(t *testing.T) {
	tests := []struct {
		issuer, domain, want string
	}{
		{"https://a.example", "", "https://a.example/"},
		{"https://a.example/", "ignored", "https://a.example/"},
		{"", "tenant.example", "https://tenant.example/"},
		{"", "", ""},
	}
	for _, tt := range tests {
		if got := DeriveIssuer(tt.issuer, tt.domain); got != tt.want {
			t.Errorf("DeriveIssuer(%q, %q) = %q, want %q", tt.issuer, tt.domain, got, tt.want)
		}
	}
}
