// Package config provides configuration management for the decider service.
package config

import (
	"os"
	"sort"
	"strings"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	M2M      M2MConfig
	External ExternalConfig
	Metadata MetadataConfig
	Auth     AuthConfig
	Resolver ResolverConfig
	Log      LogConfig
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
	GRPCHealthPort int
}

// DatabaseConfig holds connection and pool settings.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

// M2MConfig holds client-credentials settings for outbound calls.
type M2MConfig struct {
	Domain       string
	Audience     string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Timeout      time.Duration
	Leeway       time.Duration
}

// ExternalConfig holds business-service fetch settings.
type ExternalConfig struct {
	BaseURL      string
	ServiceURLs  map[string]string
	Timeout      time.Duration
	CacheTTL     time.Duration
	CacheBackend string
	RedisURL     string
}

// MetadataConfig holds the upstream attribute metadata service settings.
type MetadataConfig struct {
	BaseURL string
	Timeout time.Duration
}

// AuthConfig holds inbound bearer-token verification settings.
type AuthConfig struct {
	Mode                   string
	Issuer                 string
	Audience               string
	JWKSURI                string
	Algorithms             []string
	Leeway                 time.Duration
	JWKSCacheTTL           time.Duration
	JWKSTimeout            time.Duration
	AllowInsecureDevTokens bool
}

// ResolverConfig holds attribute resolution settings.
type ResolverConfig struct {
	DefaultObjectTables map[string]string
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Format string
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			RequestTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			URL:             "sqlite://./decider.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			QueryTimeout:    5 * time.Second,
		},
		M2M: M2MConfig{
			Timeout: 6 * time.Second,
			Leeway:  60 * time.Second,
		},
		External: ExternalConfig{
			ServiceURLs:  map[string]string{},
			Timeout:      6 * time.Second,
			CacheTTL:     30 * time.Second,
			CacheBackend: "memory",
		},
		Metadata: MetadataConfig{
			Timeout: 6 * time.Second,
		},
		Auth: AuthConfig{
			Mode:         "jwt_only",
			Algorithms:   []string{"RS256"},
			Leeway:       60 * time.Second,
			JWKSCacheTTL: 300 * time.Second,
			JWKSTimeout:  5 * time.Second,
		},
		Resolver: ResolverConfig{
			DefaultObjectTables: map[string]string{"PURCHASE_ORDER": "po_headers"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// serviceURLEnvPrefix marks per-service base URL overrides,
// e.g. SERVICE_URL_ORDERS=http://orders.internal.
const serviceURLEnvPrefix = "SERVICE_URL_"

// ServiceURLsFromEnv collects SERVICE_URL_<NAME> variables keyed by
// upper-case service name. Empty values are skipped.
func ServiceURLsFromEnv(environ []string) map[string]string {
	out := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, serviceURLEnvPrefix) {
			continue
		}
		name := strings.ToUpper(strings.TrimPrefix(key, serviceURLEnvPrefix))
		value = strings.TrimSpace(value)
		if name == "" || value == "" {
			continue
		}
		out[name] = value
	}
	return out
}

// DeriveIssuer returns issuer with a trailing slash, or one built from
// domain when issuer is empty.
func DeriveIssuer(issuer, domain string) string {
	issuer = strings.TrimSpace(issuer)
	if issuer != "" {
		if !strings.HasSuffix(issuer, "/") {
			issuer += "/"
		}
		return issuer
	}
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return ""
	}
	return "https://" + domain + "/"
}

// DeriveJWKSURI returns uri, or the well-known JWKS location under domain.
func DeriveJWKSURI(uri, domain string) string {
	if uri = strings.TrimSpace(uri); uri != "" {
		return uri
	}
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return ""
	}
	return "https://" + domain + "/.well-known/jwks.json"
}

// ParseAlgorithms splits a comma list into upper-case algorithm names.
func ParseAlgorithms(values []string) []string {
	var out []string
	for _, v := range values {
		for _, token := range strings.Split(v, ",") {
			if token = strings.ToUpper(strings.TrimSpace(token)); token != "" {
				out = append(out, token)
			}
		}
	}
	if len(out) == 0 {
		return []string{"RS256"}
	}
	return out
}

// ServiceNames returns the configured service names in sorted order.
func (c ExternalConfig) ServiceNames() []string {
	names := make([]string, 0, len(c.ServiceURLs))
	for name := range c.ServiceURLs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func environ() []string { return os.Environ() }
