// Package server provides HTTP and gRPC health server lifecycle management.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside the
// overall ("") status.
const ServiceName = "decider"

// DefaultProbeInterval is how often the health server pings the database.
const DefaultProbeInterval = 10 * time.Second

// Pinger reports whether the backing database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer serves the standard gRPC health protocol. Status is SERVING
// while the database pings and NOT_SERVING otherwise.
type HealthServer struct {
	server   *grpc.Server
	health   *health.Server
	pinger   Pinger
	addr     string
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// NewHealthServer creates a health server for host:port. A zero interval
// selects DefaultProbeInterval.
func NewHealthServer(host string, port int, pinger Pinger, interval time.Duration, logger *slog.Logger) (*HealthServer, error) {
	if pinger == nil {
		return nil, fmt.Errorf("pinger cannot be nil")
	}
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	server := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)

	return &HealthServer{
		server:   server,
		health:   healthServer,
		pinger:   pinger,
		addr:     net.JoinHostPort(host, fmt.Sprint(port)),
		interval: interval,
		logger:   logger,
	}, nil
}

// Listen binds the listener. Start calls it when it has not been called.
func (s *HealthServer) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.addr, err)
	}
	s.listener = listener
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *HealthServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start probes once, then serves until Shutdown while re-probing every
// interval. ctx bounds the probe loop.
func (s *HealthServer) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.probe(ctx)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.probe(ctx)
			}
		}
	}()

	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	s.logger.Info("grpc health server listening", "addr", listener.Addr().String())
	return s.server.Serve(listener)
}

func (s *HealthServer) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	status := grpc_health_v1.HealthCheckResponse_SERVING
	if err := s.pinger.Ping(ctx); err != nil {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		s.logger.Warn("health probe failed", "error", err)
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Shutdown marks every service NOT_SERVING and stops gracefully, forcing
// a stop after 30 seconds or when ctx ends.
func (s *HealthServer) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return fmt.Errorf("shutdown cancelled by context: %w", ctx.Err())
	case <-time.After(30 * time.Second):
		s.server.Stop()
		return fmt.Errorf("graceful shutdown timeout, forced stop")
	}
}
