package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexiqai/podcast-studio/internal/api"
	"github.com/lexiqai/podcast-studio/internal/app"
	"github.com/lexiqai/podcast-studio/internal/config"
	"github.com/lexiqai/podcast-studio/internal/observability"
	"github.com/lexiqai/podcast-studio/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("speech_engine_url", cfg.SpeechEngineURL).
		Str("join_mode", cfg.JoinMode).
		Str("store_backend", cfg.StoreBackend).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Podcast Studio starting")

	// Background runs outlive the request that started them
	runCtx, stopRuns := context.WithCancel(context.Background())
	defer stopRuns()

	startCtx, cancelStart := context.WithTimeout(runCtx, 30*time.Second)
	defer cancelStart()

	studio, err := app.Build(startCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build pipeline")
	}
	defer studio.Close()

	episodes, err := store.Open(startCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open episode store")
	}

	// Create HTTP server
	mux := http.NewServeMux()

	podcasts := api.NewServer(runCtx, studio.Pipeline, episodes, logger)
	podcasts.Register(mux)

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness checks are built here to avoid import cycles
	checks := map[string]observability.HealthCheckFunc{
		"speech_engine": studio.Speech.Check,
		"store": func(ctx context.Context) (bool, error) {
			if err := episodes.Ping(ctx); err != nil {
				return false, err
			}
			return true, nil
		},
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts. Voice swaps are synchronous and may
	// take as long as a full synthesis, so writes get a generous limit.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("http://localhost:%s/podcasts", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// gRPC health mirrors /ready for orchestrators that check over gRPC
	var grpcHealth *observability.GRPCHealth
	if cfg.GRPCHealthPort != "" {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCHealthPort))
		if err != nil {
			logger.Fatal().Err(err).Str("port", cfg.GRPCHealthPort).Msg("Failed to listen for gRPC health")
		}

		grpcHealth = observability.NewGRPCHealth(checks, logger)
		go grpcHealth.Watch(runCtx, 15*time.Second)
		go func() {
			logger.Info().Str("port", cfg.GRPCHealthPort).Msg("gRPC health listening")
			if err := grpcHealth.Serve(lis); err != nil {
				logger.Error().Err(err).Msg("gRPC health server stopped")
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if grpcHealth != nil {
		grpcHealth.Stop()
	}

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	// In-flight runs are cancelled and record their failure before exit
	stopRuns()
	podcasts.Wait()

	if err := episodes.Close(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to close episode store")
	}

	logger.Info().Msg("Server exited gracefully")
}
