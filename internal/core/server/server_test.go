package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

type fakePinger struct {
	fail atomic.Bool
}

func (p *fakePinger) Ping(context.Context) error {
	if p.fail.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func TestNewHealthServer_NilPinger(t *testing.T) {
	if _, err := NewHealthServer("127.0.0.1", 0, nil, 0, nil); err == nil {
		t.Fatal("NewHealthServer(nil pinger) error = nil, want error")
	}
}

func TestHealthServer_ReportsDatabaseState(t *testing.T) {
	pinger := &fakePinger{}
	s, err := NewHealthServer("127.0.0.1", 0, pinger, time.Hour, nil)
	if err != nil {
		t.Fatalf("NewHealthServer() error = %v", err)
	}
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)
	defer s.Shutdown(context.Background())

	conn, err := grpc.NewClient(s.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient() error = %v", err)
	}
	defer conn.Close()
	client := grpc_health_v1.NewHealthClient(conn)

	check := func(service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
		t.Helper()
		var last error
		for i := 0; i < 50; i++ {
			callCtx, callCancel := context.WithTimeout(ctx, time.Second)
			resp, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
			callCancel()
			if err == nil {
				return resp.GetStatus()
			}
			last = err
			time.Sleep(20 * time.Millisecond)
		}
		t.Fatalf("Check(%q) error = %v", service, last)
		return grpc_health_v1.HealthCheckResponse_UNKNOWN
	}

	if got := check(""); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("Check(\"\") = %v, want SERVING", got)
	}
	if got := check(ServiceName); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("Check(%q) = %v, want SERVING", ServiceName, got)
	}

	pinger.fail.Store(true)
	s.probe(ctx)
	if got := check(ServiceName); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Check(%q) after failed ping = %v, want NOT_SERVING", ServiceName, got)
	}
}

func TestHTTPServer_ServeAndShutdown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	})
	s, err := NewHTTPServer("127.0.0.1", 0, handler, nil)
	if err != nil {
		t.Fatalf("NewHTTPServer() error = %v", err)
	}
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()

	resp, err := http.Get("http://" + s.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("body = %q, want %q", body, "ok")
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v, want nil after Shutdown", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after Shutdown")
	}
}

func TestNewHTTPServer_NilHandler(t *testing.T) {
	if _, err := NewHTTPServer("", 0, nil, nil); err == nil {
		t.Fatal("NewHTTPServer(nil handler) error = nil, want error")
	}
}
