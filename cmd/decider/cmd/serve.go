package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/decider/internal/core/api"
	"github.com/solatis/decider/internal/core/server"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP decision API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "HTTP server host")
	serveCmd.Flags().Int("port", 8000, "HTTP server port")
	serveCmd.Flags().Int("grpc-health-port", 0, "gRPC health port (0 disables)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		host, _ := cmd.Flags().GetString("host")
		cfg.Server.Host = host
	}
	if cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetInt("port")
		cfg.Server.Port = port
	}
	if cmd.Flags().Changed("grpc-health-port") {
		port, _ := cmd.Flags().GetInt("grpc-health-port")
		cfg.Server.GRPCHealthPort = port
	}

	logger, err := setupLogger(cfg)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	httpServer, err := server.NewHTTPServer(cfg.Server.Host, cfg.Server.Port, a.handler, logger)
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 2)
	go func() {
		errChan <- httpServer.Start(ctx)
	}()

	var healthServer *server.HealthServer
	if cfg.Server.GRPCHealthPort > 0 {
		healthServer, err = server.NewHealthServer(cfg.Server.Host, cfg.Server.GRPCHealthPort, a.store, 0, logger)
		if err != nil {
			return fmt.Errorf("failed to create health server: %w", err)
		}
		go func() {
			errChan <- healthServer.Start(ctx)
		}()
	}

	logger.Info("starting decider", "version", api.Version, "host", cfg.Server.Host, "port", cfg.Server.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case runErr = <-errChan:
	case sig := <-sigChan:
		logger.Info("shutting down gracefully", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	errs := []error{runErr, httpServer.Shutdown(shutdownCtx)}
	if healthServer != nil {
		errs = append(errs, healthServer.Shutdown(shutdownCtx))
	}
	return errors.Join(errs...)
}
