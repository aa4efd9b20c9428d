// Package metrics exposes Prometheus collectors for decision evaluations,
// external attribute fetches, the fetch cache and HTTP requests.
//
// Collectors are registered on a private registry so tests can create as
// many Collectors as they like. Collector implements rules.Observer and
// resolver.FetchObserver.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solatis/decider/internal/types"
)

const namespace = "decider"

// Collector owns every decider metric.
type Collector struct {
	registry *prometheus.Registry

	evaluations        *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	fetches            *prometheus.CounterVec
	fetchDuration      *prometheus.HistogramVec
	cacheLookups       *prometheus.CounterVec
	requests           *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
}

// New creates a Collector with its own registry, including the Go runtime
// and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Decision table evaluations by hit policy and outcome.",
			},
			[]string{"hit_policy", "outcome"},
		),
		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Time spent reducing rules under a hit policy.",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
			[]string{"hit_policy"},
		),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "external_fetches_total",
				Help:      "Outbound attribute fetches by service and outcome.",
			},
			[]string{"service", "outcome"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "external_fetch_duration_seconds",
				Help:      "Outbound attribute fetch latency.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 6},
			},
			[]string{"service"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "external_cache_lookups_total",
				Help:      "External fetch cache lookups by result.",
			},
			[]string{"result"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status code.",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.evaluations,
		c.evaluationDuration,
		c.fetches,
		c.fetchDuration,
		c.cacheLookups,
		c.requests,
		c.requestDuration,
	)
	return c
}

// Registry returns the private registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// ObserveDecision records one engine evaluation.
func (c *Collector) ObserveDecision(policy types.HitPolicy, outcome string, elapsed time.Duration) {
	c.evaluations.WithLabelValues(string(policy), outcome).Inc()
	c.evaluationDuration.WithLabelValues(string(policy)).Observe(elapsed.Seconds())
}

// ObserveFetch records one outbound fetch.
func (c *Collector) ObserveFetch(service, outcome string, elapsed time.Duration) {
	c.fetches.WithLabelValues(service, outcome).Inc()
	c.fetchDuration.WithLabelValues(service).Observe(elapsed.Seconds())
}

// ObserveCache records a fetch cache lookup.
func (c *Collector) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveRequest records one served HTTP request. route should be the
// matched pattern, not the raw path, to bound cardinality.
func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
