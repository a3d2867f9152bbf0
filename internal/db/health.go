package db

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported by the gRPC health service.
const ServiceName = "gophora.discovery"

// Check probes one dependency.
type Check func(ctx context.Context) error

// HealthServer serves grpc.health.v1 and keeps the serving status in sync
// with the dependency checks.
type HealthServer struct {
	grpc   *grpc.Server
	health *health.Server
	checks map[string]Check
	logger *zap.Logger
}

// NewHealthServer registers the standard health service on a new gRPC server.
func NewHealthServer(logger *zap.Logger, checks map[string]Check) *HealthServer {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &HealthServer{grpc: srv, health: hs, checks: checks, logger: logger}
}

// Refresh runs every check and updates the serving status. It returns the
// failures keyed by check name.
func (h *HealthServer) Refresh(ctx context.Context) map[string]string {
	failed := map[string]string{}
	for name, check := range h.checks {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := check(cctx); err != nil {
			failed[name] = err.Error()
		}
		cancel()
	}

	status := healthpb.HealthCheckResponse_SERVING
	if len(failed) > 0 {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		h.logger.Warn("dependency check failed", zap.Any("failures", failed))
	}
	h.health.SetServingStatus(ServiceName, status)
	h.health.SetServingStatus("", status)
	return failed
}

// Serve blocks serving gRPC on port until Stop is called.
func (h *HealthServer) Serve(port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return h.grpc.Serve(lis)
}

// ServeListener serves on an existing listener; used by tests.
func (h *HealthServer) ServeListener(lis net.Listener) error {
	return h.grpc.Serve(lis)
}

// Stop marks the service not serving and stops the gRPC server gracefully.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.grpc.GracefulStop()
}
