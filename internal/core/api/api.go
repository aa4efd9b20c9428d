// Package api exposes the decision-table service over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/solatis/decider/internal/core/auth"
	"github.com/solatis/decider/internal/core/config"
	"github.com/solatis/decider/internal/core/metrics"
	"github.com/solatis/decider/internal/core/store"
	"github.com/solatis/decider/internal/rules"
	"github.com/solatis/decider/internal/types"
)

// Version is reported in the OpenAPI document.
const Version = "1.0.0"

// TableStore is the persistence surface the handlers need.
type TableStore interface {
	Ping(ctx context.Context) error
	ListTables(ctx context.Context, search string) ([]types.DecisionTable, error)
	GetTable(ctx context.Context, id types.TableID) (*types.DecisionTable, error)
	GetTableBySlug(ctx context.Context, slug string) (*types.DecisionTable, error)
	CreateTable(ctx context.Context, spec types.TableSpec) (*types.DecisionTable, error)
	UpdateTable(ctx context.Context, id types.TableID, spec types.TableSpec) (*types.DecisionTable, error)
	DeleteTable(ctx context.Context, id types.TableID) error
	ListRules(ctx context.Context, id types.TableID) ([]types.Rule, error)
	AddRule(ctx context.Context, id types.TableID, in store.RuleInput) (*types.Rule, error)
	ReplaceRules(ctx context.Context, id types.TableID, in []store.RuleInput) ([]types.Rule, error)
	SaveTable(ctx context.Context, id *types.TableID, spec types.TableSpec, in []store.RuleInput) (*types.DecisionTable, []store.SavedRule, error)
}

// AttributeResolver hydrates evaluation contexts from the attribute
// registry.
type AttributeResolver interface {
	HydrateContext(ctx context.Context, objectType, objectID string, required []string, in types.Context) (types.Context, error)
	ListAttributes(ctx context.Context, objectType string) ([]types.AttributeEntry, error)
}

// TokenSource supplies bearer tokens for outbound calls.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Config for the HTTP API handler.
type Config struct {
	Store    TableStore
	Resolver AttributeResolver
	Engine   *rules.Engine

	// Tokens authorizes metadata proxy calls. Nil answers the proxy with a
	// configuration error.
	Tokens   TokenSource
	Metadata config.MetadataConfig

	AuthMode auth.Mode
	Verifier auth.TokenVerifier

	// Metrics is optional; nil disables /metrics and request metrics.
	Metrics        *metrics.Collector
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

type service struct {
	store    TableStore
	resolver AttributeResolver
	engine   *rules.Engine
	tokens   TokenSource
	metadata config.MetadataConfig
	upstream *http.Client
	logger   *slog.Logger
}

// New returns an HTTP handler exposing the decision-table API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("resolver cannot be nil")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Metadata.Timeout
	if timeout <= 0 {
		timeout = 6 * time.Second
	}

	s := &service{
		store:    cfg.Store,
		resolver: cfg.Resolver,
		engine:   cfg.Engine,
		tokens:   cfg.Tokens,
		metadata: cfg.Metadata,
		upstream: &http.Client{Timeout: timeout},
		logger:   logger,
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestObserver(cfg.Metrics, logger))
	router.Use(cors)
	if cfg.RequestTimeout > 0 {
		router.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	router.Use(guardPaths(auth.Middleware(cfg.AuthMode, cfg.Verifier, logger), "/evaluate"))

	if cfg.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	hcfg := huma.DefaultConfig("Decider API", Version)
	// No $schema links in response bodies.
	hcfg.CreateHooks = nil
	api := humachi.New(router, hcfg)

	s.registerHealth(api)
	s.registerTables(api)
	s.registerRules(api)
	s.registerEvaluation(api)
	s.registerMetadata(api)

	return router, nil
}

// output wraps a response body for huma.
type output[T any] struct {
	Body T
}

func respond[T any](body T) *output[T] {
	return &output[T]{Body: body}
}

// cors adds permissive CORS headers and answers every OPTIONS request
// directly, reflecting the requested origin, method and headers.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Add("Vary", "Origin")

		if r.Method != http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		methods := r.Header.Get("Access-Control-Request-Method")
		if methods == "" {
			methods = "GET,POST,PUT,PATCH,DELETE,OPTIONS"
		}
		headers := r.Header.Get("Access-Control-Request-Headers")
		if headers == "" {
			headers = "*"
		}
		h.Set("Access-Control-Allow-Methods", methods)
		h.Set("Access-Control-Allow-Headers", headers)
		w.WriteHeader(http.StatusNoContent)
	})
}

// guardPaths applies guard only to requests for the listed paths.
func guardPaths(guard func(http.Handler) http.Handler, paths ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		guarded := guard(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range paths {
				if r.URL.Path == p {
					guarded.ServeHTTP(w, r)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestObserver logs every request and records it in metrics under the
// matched route pattern.
func requestObserver(collector *metrics.Collector, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			elapsed := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			if collector != nil {
				collector.ObserveRequest(r.Method, route, status, elapsed)
			}
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"status", status,
				"duration", elapsed)
		})
	}
}

func (s *service) registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*output[HealthResponse], error) {
		if err := s.store.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", "error", err)
			return respond(HealthResponse{Status: "unhealthy", Database: err.Error()}), nil
		}
		return respond(HealthResponse{Status: "healthy", Database: "connected"}), nil
	})
}
