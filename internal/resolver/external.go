// internal/resolver/external.go
package resolver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/solatis/decider/internal/types"
)

/*
 * External data client.
 *
 * Base URL resolution per request:
 *
 *   1. endpoint is absolute (http:// or https://)   -> used as-is
 *   2. ServiceURLs[upper(service)]                   -> per-service override
 *   3. BaseURL                                       -> shared default
 *
 * Responses are cached by service|METHOD|url|params|headers. A cached
 * document is returned without touching the network; only successful,
 * JSON-decodable responses are cached.
 */

// FetchRequest describes one outbound fetch.
type FetchRequest struct {
	Service  string
	Endpoint string
	Method   string
	Params   map[string]any
	Headers  map[string]any
}

// Fetcher retrieves a decoded JSON document.
type Fetcher interface {
	FetchJSON(ctx context.Context, req FetchRequest) (any, error)
}

// FetchObserver receives per-fetch measurements.
type FetchObserver interface {
	ObserveFetch(service, outcome string, elapsed time.Duration)
	ObserveCache(hit bool)
}

// Fetch outcomes reported to FetchObserver.
const (
	FetchOK    = "ok"
	FetchError = "error"
)

// ExternalConfig configures an ExternalClient.
type ExternalConfig struct {
	BaseURL     string
	ServiceURLs map[string]string
	Timeout     time.Duration
}

// ExternalClient fetches JSON from business services.
type ExternalClient struct {
	baseURL     string
	serviceURLs map[string]string
	http        *http.Client
	cache       Cache
	observer    FetchObserver
}

// NewExternalClient creates a client. A nil cache disables caching.
func NewExternalClient(cfg ExternalConfig, cache Cache, observer FetchObserver) *ExternalClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	services := make(map[string]string, len(cfg.ServiceURLs))
	for name, u := range cfg.ServiceURLs {
		services[strings.ToUpper(strings.TrimSpace(name))] = strings.TrimSpace(u)
	}
	return &ExternalClient{
		baseURL:     strings.TrimSpace(cfg.BaseURL),
		serviceURLs: services,
		http:        &http.Client{Timeout: timeout},
		cache:       cache,
		observer:    observer,
	}
}

// FetchJSON performs req, consulting the cache first.
func (c *ExternalClient) FetchJSON(ctx context.Context, req FetchRequest) (any, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	target, err := c.resolveURL(req.Service, req.Endpoint)
	if err != nil {
		return nil, err
	}

	key := strings.Join([]string{req.Service, method, target, stableJSON(orEmpty(req.Params)), stableJSON(orEmpty(req.Headers))}, "|")
	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, key); ok && cached != nil {
			c.observeCache(true)
			return cached, nil
		}
		c.observeCache(false)
	}

	start := time.Now()
	document, err := c.do(ctx, req.Service, method, target, req.Params, req.Headers)
	c.observeFetch(req.Service, err, time.Since(start))
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Set(ctx, key, document)
	}
	return document, nil
}

func (c *ExternalClient) do(ctx context.Context, service, method, target string, params, headers map[string]any) (any, error) {
	if len(params) > 0 {
		u, err := url.Parse(target)
		if err != nil {
			return nil, types.NewConfigurationError("Invalid URL for service '%s': %v", service, err)
		}
		q := u.Query()
		for k, v := range params {
			q.Set(k, types.FormatValue(v))
		}
		u.RawQuery = q.Encode()
		target = u.String()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, types.WrapDataError(err, "External service '%s' request failed: %v", service, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, types.FormatValue(v))
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, types.WrapDataError(err, "External service '%s' request failed: %v", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, types.NewDataError("External service '%s' returned HTTP %d", service, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.WrapDataError(err, "External service '%s' request failed: %v", service, err)
	}
	var document any
	if err := json.Unmarshal(body, &document); err != nil {
		return nil, types.WrapDataError(err, "External service '%s' returned invalid JSON.", service)
	}
	return document, nil
}

func (c *ExternalClient) resolveURL(service, endpoint string) (string, error) {
	name := strings.TrimSpace(service)
	if name == "" {
		return "", types.NewConfigurationError("source_service is required for EXTERNAL attributes.")
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", types.NewConfigurationError("endpoint is required for EXTERNAL attributes.")
	}
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint, nil
	}

	base := c.serviceURLs[strings.ToUpper(name)]
	if base == "" {
		base = c.baseURL
	}
	if base == "" {
		return "", types.NewConfigurationError("No base URL configured for service '%s'.", name)
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/"), nil
}

func (c *ExternalClient) observeFetch(service string, err error, elapsed time.Duration) {
	if c.observer == nil {
		return
	}
	outcome := FetchOK
	if err != nil {
		outcome = FetchError
	}
	c.observer.ObserveFetch(service, outcome, elapsed)
}

func (c *ExternalClient) observeCache(hit bool) {
	if c.observer != nil {
		c.observer.ObserveCache(hit)
	}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

var _ Fetcher = (*ExternalClient)(nil)
