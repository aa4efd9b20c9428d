package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envAliases binds each key to the environment names deployments already
// use. The DECIDER_ form always wins over an alias.
var envAliases = map[string][]string{
	"database.url":                   {"DATABASE_URL"},
	"m2m.domain":                     {"AUTH0_DOMAIN"},
	"m2m.audience":                   {"AUTH0_AUDIENCE"},
	"m2m.client_id":                  {"AUTH0_M2M_CLIENT_ID", "AUTH0_CLIENT_ID"},
	"m2m.client_secret":              {"AUTH0_M2M_CLIENT_SECRET", "AUTH0_CLIENT_SECRET"},
	"m2m.token_url":                  {"AUTH0_M2M_TOKEN_URL"},
	"m2m.timeout":                    {"AUTH0_M2M_TIMEOUT_SECONDS"},
	"m2m.leeway":                     {"AUTH0_M2M_TOKEN_LEEWAY_SECONDS"},
	"external.base_url":              {"BUSINESS_OBJECT_BASE_URL"},
	"external.timeout":               {"EXTERNAL_HTTP_TIMEOUT"},
	"external.cache_ttl":             {"EXTERNAL_CACHE_TTL_SECONDS"},
	"metadata.base_url":              {"ATTRIBUTE_REGISTRY_BASE_URL"},
	"auth.mode":                      {"AUTH_MODE"},
	"auth.issuer":                    {"AUTH0_ISSUER"},
	"auth.audience":                  {"AUTH0_AUDIENCE"},
	"auth.jwks_uri":                  {"AUTH0_JWKS_URI"},
	"auth.algorithms":                {"AUTH_JWT_ALGORITHMS"},
	"auth.leeway":                    {"AUTH_JWT_CLOCK_SKEW_SEC"},
	"auth.jwks_cache_ttl":            {"AUTH_JWKS_CACHE_TTL_SEC"},
	"auth.jwks_timeout":              {"AUTH_JWKS_TIMEOUT_SEC"},
	"auth.allow_insecure_dev_tokens": {"AUTH_ALLOW_INSECURE_DEV_TOKENS"},
}

// secretKeys may only come from the environment.
var secretKeys = []string{"m2m.client_secret"}

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("DECIDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, aliases := range envAliases {
		names := append([]string{"DECIDER_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Security check: reject secrets in config files
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg, err := fromViper(v)
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout.String())
	v.SetDefault("server.grpc_health_port", d.Server.GRPCHealthPort)

	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime.String())
	v.SetDefault("database.query_timeout", d.Database.QueryTimeout.String())

	v.SetDefault("m2m.timeout", d.M2M.Timeout.String())
	v.SetDefault("m2m.leeway", d.M2M.Leeway.String())

	v.SetDefault("external.timeout", d.External.Timeout.String())
	v.SetDefault("external.cache_ttl", d.External.CacheTTL.String())
	v.SetDefault("external.cache_backend", d.External.CacheBackend)

	v.SetDefault("metadata.timeout", d.Metadata.Timeout.String())

	v.SetDefault("auth.mode", d.Auth.Mode)
	v.SetDefault("auth.algorithms", d.Auth.Algorithms)
	v.SetDefault("auth.leeway", d.Auth.Leeway.String())
	v.SetDefault("auth.jwks_cache_ttl", d.Auth.JWKSCacheTTL.String())
	v.SetDefault("auth.jwks_timeout", d.Auth.JWKSTimeout.String())
	v.SetDefault("auth.allow_insecure_dev_tokens", false)

	v.SetDefault("resolver.default_object_tables", d.Resolver.DefaultObjectTables)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

func fromViper(v *viper.Viper) (*Config, error) {
	d := durationReader{v: v}
	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			RequestTimeout: d.get("server.request_timeout"),
			GRPCHealthPort: v.GetInt("server.grpc_health_port"),
		},
		Database: DatabaseConfig{
			URL:             strings.TrimSpace(v.GetString("database.url")),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: d.get("database.conn_max_lifetime"),
			QueryTimeout:    d.get("database.query_timeout"),
		},
		M2M: M2MConfig{
			Domain:       strings.TrimSpace(v.GetString("m2m.domain")),
			Audience:     strings.TrimSpace(v.GetString("m2m.audience")),
			ClientID:     strings.TrimSpace(v.GetString("m2m.client_id")),
			ClientSecret: strings.TrimSpace(v.GetString("m2m.client_secret")),
			TokenURL:     strings.TrimSpace(v.GetString("m2m.token_url")),
			Timeout:      d.get("m2m.timeout"),
			Leeway:       d.get("m2m.leeway"),
		},
		External: ExternalConfig{
			BaseURL:      strings.TrimSpace(v.GetString("external.base_url")),
			ServiceURLs:  upperKeys(v.GetStringMapString("external.service_urls")),
			Timeout:      d.get("external.timeout"),
			CacheTTL:     d.get("external.cache_ttl"),
			CacheBackend: strings.ToLower(strings.TrimSpace(v.GetString("external.cache_backend"))),
			RedisURL:     strings.TrimSpace(v.GetString("external.redis_url")),
		},
		Metadata: MetadataConfig{
			BaseURL: strings.TrimSpace(v.GetString("metadata.base_url")),
			Timeout: d.get("metadata.timeout"),
		},
		Auth: AuthConfig{
			Mode:                   strings.ToLower(strings.TrimSpace(v.GetString("auth.mode"))),
			Issuer:                 DeriveIssuer(v.GetString("auth.issuer"), v.GetString("m2m.domain")),
			Audience:               strings.TrimSpace(v.GetString("auth.audience")),
			JWKSURI:                DeriveJWKSURI(v.GetString("auth.jwks_uri"), v.GetString("m2m.domain")),
			Algorithms:             ParseAlgorithms(v.GetStringSlice("auth.algorithms")),
			Leeway:                 d.get("auth.leeway"),
			JWKSCacheTTL:           d.get("auth.jwks_cache_ttl"),
			JWKSTimeout:            d.get("auth.jwks_timeout"),
			AllowInsecureDevTokens: v.GetBool("auth.allow_insecure_dev_tokens"),
		},
		Resolver: ResolverConfig{
			DefaultObjectTables: upperKeys(v.GetStringMapString("resolver.default_object_tables")),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
	}
	if d.err != nil {
		return nil, d.err
	}

	for name, u := range ServiceURLsFromEnv(environ()) {
		cfg.External.ServiceURLs[name] = u
	}
	if cfg.Metadata.BaseURL == "" {
		cfg.Metadata.BaseURL = cfg.External.BaseURL
	}
	if cfg.Metadata.BaseURL == "" {
		cfg.Metadata.BaseURL = "http://localhost:8000"
	}
	return cfg, nil
}

// durationReader accepts Go duration strings and bare integers, which are
// read as seconds to match the *_SECONDS environment aliases.
type durationReader struct {
	v   *viper.Viper
	err error
}

func (r *durationReader) get(key string) time.Duration {
	raw := strings.TrimSpace(r.v.GetString(key))
	if raw == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := time.ParseDuration(raw)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("%s: invalid duration %q", key, raw)
	}
	return d
}

func upperKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out
}

// validateConfig checks port ranges, positive pool sizes and timeouts, and
// enumerated settings.
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.GRPCHealthPort < 0 || cfg.Server.GRPCHealthPort > 65535 {
		return fmt.Errorf("grpc_health_port must be between 0 and 65535, got %d", cfg.Server.GRPCHealthPort)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.Server.RequestTimeout)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if cfg.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("max_open_conns must be positive, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns < 0 {
		return fmt.Errorf("max_idle_conns must not be negative, got %d", cfg.Database.MaxIdleConns)
	}
	if cfg.External.Timeout <= 0 {
		return fmt.Errorf("external.timeout must be positive, got %v", cfg.External.Timeout)
	}
	switch cfg.External.CacheBackend {
	case "memory":
	case "redis":
		if cfg.External.RedisURL == "" {
			return fmt.Errorf("external.redis_url is required when cache_backend is redis")
		}
	default:
		return fmt.Errorf("external.cache_backend must be memory or redis, got %q", cfg.External.CacheBackend)
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", cfg.Log.Format)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets.
func validateNoSecretsInConfig(v *viper.Viper) error {
	for _, key := range secretKeys {
		if v.InConfig(key) {
			return fmt.Errorf("%s not allowed in config files (use DECIDER_M2M_CLIENT_SECRET or AUTH0_M2M_CLIENT_SECRET environment variable)", key)
		}
	}
	return nil
}
