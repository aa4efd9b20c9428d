package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// JWK is one RSA signing key from a JSON Web Key Set.
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg,omitempty"`
	Use string `json:"use,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksEntry struct {
	keys      map[string]JWK
	expiresAt time.Time
}

// JWKSCache keeps key sets per URI for a TTL. A failed refresh falls back
// to the last key set fetched from the same URI, however old.
type JWKSCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	client  *http.Client
	entries map[string]jwksEntry
	now     func() time.Time
	logger  *slog.Logger
}

// NewJWKSCache creates a cache. A zero ttl refetches on every lookup.
func NewJWKSCache(ttl, timeout time.Duration) *JWKSCache {
	if ttl < 0 {
		ttl = 0
	}
	if timeout < time.Second {
		timeout = time.Second
	}
	return &JWKSCache{
		ttl:     ttl,
		client:  &http.Client{Timeout: timeout},
		entries: make(map[string]jwksEntry),
		now:     time.Now,
		logger:  slog.Default(),
	}
}

// Key returns the key with kid from the set at uri. A nil key with nil
// error means the set was loaded but holds no such kid.
func (c *JWKSCache) Key(ctx context.Context, uri, kid string) (*JWK, error) {
	if uri == "" || kid == "" {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current, cached := c.entries[uri]
	if cached && c.now().Before(current.expiresAt) {
		if key, ok := current.keys[kid]; ok {
			return &key, nil
		}
	}

	refreshed, err := c.refresh(ctx, uri)
	if err != nil {
		if !cached {
			return nil, err
		}
		c.logger.Warn("jwks refresh failed, using stale keys", "uri", uri, "error", err)
		refreshed = current
	}
	if key, ok := refreshed.keys[kid]; ok {
		return &key, nil
	}
	return nil, nil
}

func (c *JWKSCache) refresh(ctx context.Context, uri string) (jwksEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return jwksEntry{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return jwksEntry{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return jwksEntry{}, fmt.Errorf("JWKS endpoint returned HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return jwksEntry{}, err
	}

	var document struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(body, &document); err != nil || document.Keys == nil {
		return jwksEntry{}, fmt.Errorf("JWKS document has no keys array")
	}

	keys := make(map[string]JWK, len(document.Keys))
	for _, raw := range document.Keys {
		var key JWK
		if json.Unmarshal(raw, &key) != nil {
			continue
		}
		key.Kid = strings.TrimSpace(key.Kid)
		if key.Kid == "" {
			continue
		}
		keys[key.Kid] = key
	}

	entry := jwksEntry{keys: keys, expiresAt: c.now().Add(c.ttl)}
	c.entries[uri] = entry
	return entry, nil
}
