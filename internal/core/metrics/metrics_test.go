package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/solatis/decider/internal/resolver"
	"github.com/solatis/decider/internal/rules"
	"github.com/solatis/decider/internal/types"
)

var (
	_ rules.Observer         = (*Collector)(nil)
	_ resolver.FetchObserver = (*Collector)(nil)
)

func TestObserveDecision(t *testing.T) {
	c := New()
	c.ObserveDecision(types.HitPolicyUnique, rules.OutcomeConflict, time.Millisecond)
	c.ObserveDecision(types.HitPolicyUnique, rules.OutcomeConflict, time.Millisecond)
	c.ObserveDecision(types.HitPolicyFirstHit, rules.OutcomeMatched, time.Millisecond)

	if got := testutil.ToFloat64(c.evaluations.WithLabelValues("UNIQUE", "conflict")); got != 2 {
		t.Errorf("UNIQUE/conflict = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.evaluations.WithLabelValues("FIRST_HIT", "matched")); got != 1 {
		t.Errorf("FIRST_HIT/matched = %v, want 1", got)
	}
}

func TestObserveFetchAndCache(t *testing.T) {
	c := New()
	c.ObserveFetch("ORDERS", resolver.FetchOK, 20*time.Millisecond)
	c.ObserveFetch("ORDERS", resolver.FetchError, 20*time.Millisecond)
	c.ObserveCache(true)
	c.ObserveCache(false)
	c.ObserveCache(false)

	if got := testutil.ToFloat64(c.fetches.WithLabelValues("ORDERS", "ok")); got != 1 {
		t.Errorf("ORDERS/ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.cacheLookups.WithLabelValues("miss")); got != 2 {
		t.Errorf("cache misses = %v, want 2", got)
	}
}

func TestEngineReportsToCollector(t *testing.T) {
	c := New()
	engine := rules.NewEngine(c)
	engine.Evaluate(types.HitPolicyFirstHit, nil, types.Context{}, false)

	if got := testutil.ToFloat64(c.evaluations.WithLabelValues("FIRST_HIT", "no_match")); got != 1 {
		t.Errorf("FIRST_HIT/no_match = %v, want 1", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New()
	c.ObserveRequest("POST", "/evaluate", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `decider_http_requests_total{method="POST",route="/evaluate",status="200"} 1`) {
		t.Errorf("exposition missing request counter:\n%s", body)
	}
}
