// internal/resolver/external_test.go
package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/decider/internal/types"
)

type countingObserver struct {
	fetches atomic.Int32
	hits    atomic.Int32
	misses  atomic.Int32
}

func (o *countingObserver) ObserveFetch(string, string, time.Duration) { o.fetches.Add(1) }

func (o *countingObserver) ObserveCache(hit bool) {
	if hit {
		o.hits.Add(1)
	} else {
		o.misses.Add(1)
	}
}

func TestExternalClient_CachesResponses(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "abc", r.Header.Get("X-Tenant"))
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	obs := &countingObserver{}
	client := NewExternalClient(ExternalConfig{BaseURL: server.URL + "/"}, NewMemoryCache(time.Minute), obs)
	req := FetchRequest{Service: "orders", Endpoint: "/status", Headers: map[string]any{"X-Tenant": "abc"}}

	for i := 0; i < 3; i++ {
		doc, err := client.FetchJSON(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"ok": true}, doc)
	}

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), obs.fetches.Load())
	assert.Equal(t, int32(2), obs.hits.Load())
	assert.Equal(t, int32(1), obs.misses.Load())
}

func TestExternalClient_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fail":
			w.WriteHeader(http.StatusBadGateway)
		case "/garbage":
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	defer server.Close()

	client := NewExternalClient(ExternalConfig{BaseURL: server.URL}, nil, nil)

	_, err := client.FetchJSON(context.Background(), FetchRequest{Service: "orders", Endpoint: "/fail"})
	require.Error(t, err)
	assert.True(t, types.IsData(err))
	assert.Equal(t, "External service 'orders' returned HTTP 502", err.Error())

	_, err = client.FetchJSON(context.Background(), FetchRequest{Service: "orders", Endpoint: "/garbage"})
	require.Error(t, err)
	assert.True(t, types.IsData(err))
	assert.Equal(t, "External service 'orders' returned invalid JSON.", err.Error())
}

func TestExternalClient_URLResolution(t *testing.T) {
	client := NewExternalClient(ExternalConfig{
		BaseURL:     "http://default.internal",
		ServiceURLs: map[string]string{"billing": "http://billing.internal/api/"},
	}, nil, nil)

	tests := []struct {
		service, endpoint, want string
	}{
		{"BILLING", "invoices/1", "http://billing.internal/api/invoices/1"},
		{"orders", "/orders/1", "http://default.internal/orders/1"},
		{"orders", "https://elsewhere.example/x", "https://elsewhere.example/x"},
	}
	for _, tt := range tests {
		got, err := client.resolveURL(tt.service, tt.endpoint)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	bare := NewExternalClient(ExternalConfig{}, nil, nil)
	_, err := bare.resolveURL("orders", "/x")
	require.Error(t, err)
	assert.True(t, types.IsConfiguration(err))
	assert.Equal(t, "No base URL configured for service 'orders'.", err.Error())
}

func TestMemoryCache_Expiry(t *testing.T) {
	cache := NewMemoryCache(0)
	now := time.Unix(1000, 0)
	cache.now = func() time.Time { return now }

	cache.Set(context.Background(), "k", "v")
	got, ok := cache.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	now = now.Add(MinCacheTTL)
	_, ok = cache.Get(context.Background(), "k")
	assert.False(t, ok, "entry must expire after the minimum TTL")
}

func TestMemoryCache_SetDropsExpiredEntries(t *testing.T) {
	cache := NewMemoryCache(0)
	now := time.Unix(1000, 0)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		cache.Set(ctx, key, key)
	}
	require.Len(t, cache.items, 3)

	now = now.Add(MinCacheTTL)
	cache.Set(ctx, "d", "d")
	assert.Len(t, cache.items, 1, "keys never read again must not accumulate")
	got, ok := cache.Get(ctx, "d")
	require.True(t, ok)
	assert.Equal(t, "d", got)
}

func TestRedisCache_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 30*time.Second)
	defer cache.Close()
	ctx := context.Background()

	_, ok := cache.Get(ctx, "missing")
	assert.False(t, ok)

	cache.Set(ctx, "k", map[string]any{"amount": 12.5})
	got, ok := cache.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"amount": 12.5}, got)

	mr.FastForward(31 * time.Second)
	_, ok = cache.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRenderEndpoint(t *testing.T) {
	got, err := renderEndpoint("/{object_type}/{object_id}?q={{raw}}", "7", "PO")
	require.NoError(t, err)
	assert.Equal(t, "/PO/7?q={raw}", got)

	_, err = renderEndpoint("/{nope}", "7", "PO")
	assert.True(t, types.IsConfiguration(err))
}

func TestExtractPath(t *testing.T) {
	doc := map[string]any{"a": map[string]any{"b": []any{1.0, 2.0}}}

	v, err := extractPath(doc, "$.a.b[0]")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = extractPath(doc, "a.missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = extractPath(doc, "$.a[")
	require.Error(t, err)
	assert.Equal(t, "Invalid jsonpath expression '$.a['.", err.Error())
}
