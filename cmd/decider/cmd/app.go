package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/decider/internal/core/api"
	"github.com/solatis/decider/internal/core/auth"
	"github.com/solatis/decider/internal/core/config"
	"github.com/solatis/decider/internal/core/db"
	"github.com/solatis/decider/internal/core/metrics"
	"github.com/solatis/decider/internal/core/store"
	"github.com/solatis/decider/internal/resolver"
	"github.com/solatis/decider/internal/rules"
)

// app is the fully wired service.
type app struct {
	db      *sqlx.DB
	store   *store.Store
	handler http.Handler
	closers []io.Closer
}

// newApp opens and migrates the database and wires every component the
// HTTP API needs.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	database, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a := &app{db: database, closers: []io.Closer{database}}

	applied, err := db.MigrateUp(database)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	for _, id := range applied {
		logger.Info("applied migration", "id", id)
	}

	a.store, err = store.New(database, store.Config{QueryTimeout: cfg.Database.QueryTimeout, Logger: logger})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	collector := metrics.New()

	var cache resolver.Cache
	switch cfg.External.CacheBackend {
	case "redis":
		redisCache, err := resolver.NewRedisCache(cfg.External.RedisURL, cfg.External.CacheTTL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create redis cache: %w", err)
		}
		a.closers = append(a.closers, redisCache)
		cache = redisCache
	default:
		cache = resolver.NewMemoryCache(cfg.External.CacheTTL)
	}

	fetcher := resolver.NewExternalClient(resolver.ExternalConfig{
		BaseURL:     cfg.External.BaseURL,
		ServiceURLs: cfg.External.ServiceURLs,
		Timeout:     cfg.External.Timeout,
	}, cache, collector)

	res, err := resolver.New(a.store, database, fetcher, resolver.Config{
		ObjectTables: cfg.Resolver.DefaultObjectTables,
		QueryTimeout: cfg.Database.QueryTimeout,
		Logger:       logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Issuer:                 cfg.Auth.Issuer,
		Audience:               cfg.Auth.Audience,
		JWKSURI:                cfg.Auth.JWKSURI,
		Algorithms:             cfg.Auth.Algorithms,
		Leeway:                 cfg.Auth.Leeway,
		AllowInsecureDevTokens: cfg.Auth.AllowInsecureDevTokens,
	}, auth.NewJWKSCache(cfg.Auth.JWKSCacheTTL, cfg.Auth.JWKSTimeout))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create token verifier: %w", err)
	}
	if cfg.Auth.AllowInsecureDevTokens {
		logger.Warn("insecure dev tokens enabled, bearer signatures are not verified")
	}

	tokens := auth.NewTokenClient(auth.M2MConfig{
		Domain:       cfg.M2M.Domain,
		Audience:     cfg.M2M.Audience,
		ClientID:     cfg.M2M.ClientID,
		ClientSecret: cfg.M2M.ClientSecret,
		TokenURL:     cfg.M2M.TokenURL,
		Timeout:      cfg.M2M.Timeout,
		Leeway:       cfg.M2M.Leeway,
	})

	a.handler, err = api.New(api.Config{
		Store:          a.store,
		Resolver:       res,
		Engine:         rules.NewEngine(collector),
		Tokens:         tokens,
		Metadata:       cfg.Metadata,
		AuthMode:       auth.ParseMode(cfg.Auth.Mode),
		Verifier:       verifier,
		Metrics:        collector,
		RequestTimeout: cfg.Server.RequestTimeout,
		Logger:         logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create api: %w", err)
	}
	return a, nil
}

// Close releases the cache client and the database pool.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
