package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"robotfleet/internal/health"
	"robotfleet/internal/observability"
	"robotfleet/internal/statusapi"
	"time"

	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var listen, metricsListen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local control and stream API",
		Long: `serve polls the robot service and exposes the session over HTTP for a
view layer: state and commands under /v1, a websocket position stream at
/v1/stream, probes at /livez and /readyz, and Prometheus metrics on a
separate listener.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("listen") {
				a.cfg.ListenAddr = listen
			}
			if cmd.Flags().Changed("metrics-listen") {
				a.cfg.MetricsAddr = metricsListen
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Status API address (default $LISTEN_ADDR or 127.0.0.1:8090)")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "Metrics address, empty to disable (default $METRICS_ADDR or 127.0.0.1:9090)")
	return cmd
}

// serve runs until ctx is cancelled or a listener fails.
func (a *app) serve(ctx context.Context) error {
	logger := a.logger
	cfg := a.cfg

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	s := a.newSession(metrics)
	defer s.Close()

	healthChecker := health.NewChecker(s)

	// Stream hub lives until the API server has drained.
	streamCtx, stopStream := context.WithCancel(context.Background())
	defer stopStream()
	hub := statusapi.NewHub(logger.With("component", "stream"), metrics)
	go hub.Run(streamCtx)
	events, unsubscribe := s.Subscribe()
	defer unsubscribe()
	go hub.Forward(streamCtx, events)

	router := statusapi.NewRouter(statusapi.RouterConfig{
		Session:       s,
		HealthChecker: healthChecker,
		Metrics:       metrics,
		Stream:        hub,
		APIKey:        cfg.APIKey,
		Logger:        logger.With("component", "statusapi"),
	})

	if cfg.APIKey != "" {
		logger.Info("API authentication enabled")
	} else {
		logger.Warn("API authentication disabled - no API_KEY_FILE configured")
	}

	// WriteTimeout stays zero: /v1/stream holds connections open and the
	// stream sets its own write deadlines.
	apiServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	apiListener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("GET /metrics", metricsHandler)
		metricsServer = &http.Server{
			Addr:         cfg.MetricsAddr,
			Handler:      metricsMux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
	}

	// Channel to capture server errors
	serverErr := make(chan error, 2)

	go func() {
		logger.Info("Starting status API server", "addr", apiListener.Addr().String(), "robotService", cfg.BaseURL)
		if err := apiServer.Serve(apiListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if metricsServer != nil {
		go func() {
			logger.Info("Starting metrics server", "addr", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	s.EnablePolling()
	if a.onListen != nil {
		a.onListen(apiListener.Addr().String())
	}

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status API server shutdown error", "error", err)
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server shutdown error", "error", err)
			}
		}
	}

	// Wait for interrupt signal or server error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErr:
		logger.Error("Server failed", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	if cfg.ShutdownDrainWait > 0 {
		logger.Info("Waiting for traffic to drain", "duration", cfg.ShutdownDrainWait)
		time.Sleep(cfg.ShutdownDrainWait)
	}

	// Phase 2: Stop polling, then finish in-flight requests
	s.DisablePolling()
	logger.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Phase 3: Close stream clients
	stopStream()
	logger.Info("Shutdown complete")
	return nil
}
