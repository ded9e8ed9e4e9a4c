package observability

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealth serves the standard gRPC health protocol, mirroring the
// readiness checks used by the HTTP /ready endpoint.
type GRPCHealth struct {
	server *grpc.Server
	health *health.Server
	checks map[string]HealthCheckFunc
	logger zerolog.Logger
}

// NewGRPCHealth creates a gRPC health server that starts as NOT_SERVING
func NewGRPCHealth(checks map[string]HealthCheckFunc, logger zerolog.Logger) *GRPCHealth {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	server := grpc.NewServer()
	healthpb.RegisterHealthServer(server, hs)

	return &GRPCHealth{
		server: server,
		health: hs,
		checks: checks,
		logger: logger,
	}
}

// Serve blocks serving health RPCs on lis
func (g *GRPCHealth) Serve(lis net.Listener) error {
	return g.server.Serve(lis)
}

// Refresh runs the readiness checks once and publishes the result
func (g *GRPCHealth) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	dependencies, ok := CheckDependencies(ctx, g.checks)

	status := healthpb.HealthCheckResponse_SERVING
	if !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		for name, dep := range dependencies {
			if dep.Status != "healthy" {
				g.logger.Warn().Str("dependency", name).Str("message", dep.Message).Msg("Dependency not ready")
			}
		}
	}

	g.health.SetServingStatus("", status)
	return status
}

// Watch refreshes the serving status every interval until ctx is done
func (g *GRPCHealth) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		g.Refresh(checkCtx)
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop marks the service as not serving and stops the server
func (g *GRPCHealth) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}
