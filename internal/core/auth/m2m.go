package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/solatis/decider/internal/types"
)

// DefaultTokenLifetime applies when the token endpoint omits expires_in.
const DefaultTokenLifetime = 3600 * time.Second

// M2MConfig configures a client-credentials token client.
type M2MConfig struct {
	Domain       string
	Audience     string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Timeout      time.Duration
	Leeway       time.Duration
}

// TokenClient obtains and caches a machine-to-machine access token.
// The mutex is held from the freshness check through the refresh, so
// concurrent callers of a stale cache trigger exactly one token request.
type TokenClient struct {
	cfg  M2MConfig
	http *http.Client
	now  func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenClient creates a token client. TokenURL defaults to
// https://<Domain>/oauth/token.
func NewTokenClient(cfg M2MConfig) *TokenClient {
	cfg.Domain = strings.TrimSpace(cfg.Domain)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	if cfg.TokenURL == "" && cfg.Domain != "" {
		cfg.TokenURL = "https://" + cfg.Domain + "/oauth/token"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 6 * time.Second
	}
	if cfg.Leeway < 0 {
		cfg.Leeway = 0
	}
	return &TokenClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		now:  time.Now,
	}
}

// AccessToken returns the cached token while it is valid for longer than
// the leeway, otherwise requests a new one.
func (c *TokenClient) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token != "" && now.Add(c.cfg.Leeway).Before(c.expiresAt) {
		return c.token, nil
	}

	token, lifetime, err := c.requestToken(ctx)
	if err != nil {
		return "", err
	}
	if lifetime < time.Second {
		lifetime = time.Second
	}
	c.token = token
	c.expiresAt = now.Add(lifetime)
	return token, nil
}

func (c *TokenClient) requestToken(ctx context.Context) (string, time.Duration, error) {
	if err := c.validate(); err != nil {
		return "", 0, err
	}

	payload, err := json.Marshal(map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"audience":      c.cfg.Audience,
	})
	if err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, bytes.NewReader(payload))
	if err != nil {
		return "", 0, types.WrapDataError(err, "M2M token request failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, types.WrapDataError(err, "M2M token request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", 0, types.NewDataError("M2M token request failed with HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, types.WrapDataError(err, "M2M token request failed: %v", err)
	}
	var parsed struct {
		AccessToken string          `json:"access_token"`
		ExpiresIn   json.RawMessage `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", 0, types.WrapDataError(err, "M2M token endpoint returned invalid JSON.")
	}
	token := strings.TrimSpace(parsed.AccessToken)
	if token == "" {
		return "", 0, types.NewDataError("M2M token endpoint response missing access_token.")
	}
	return token, expiresIn(parsed.ExpiresIn), nil
}

// expiresIn accepts integer seconds as a JSON number or string.
func expiresIn(raw json.RawMessage) time.Duration {
	text := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	seconds, err := strconv.Atoi(text)
	if err != nil {
		return DefaultTokenLifetime
	}
	return time.Duration(seconds) * time.Second
}

func (c *TokenClient) validate() error {
	var missing []string
	if c.cfg.TokenURL == "" {
		missing = append(missing, "m2m.token_url/m2m.domain")
	}
	if c.cfg.Audience == "" {
		missing = append(missing, "m2m.audience")
	}
	if c.cfg.ClientID == "" {
		missing = append(missing, "m2m.client_id")
	}
	if c.cfg.ClientSecret == "" {
		missing = append(missing, "m2m.client_secret")
	}
	if len(missing) > 0 {
		return types.NewConfigurationError("Missing M2M configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
