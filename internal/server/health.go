// Package server exposes the daemon's gRPC health endpoint.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// IngestService is the health service name that tracks pipeline runs.
const IngestService = "kabalot.Ingest"

// Health serves grpc.health.v1. The overall status ("") follows the server
// lifecycle; IngestService goes NOT_SERVING after a failed run and back to
// SERVING after a successful one.
type Health struct {
	grpc   *grpc.Server
	hs     *health.Server
	logger *slog.Logger
}

func NewHealth(logger *slog.Logger) *Health {
	if logger == nil {
		logger = slog.Default()
	}
	g := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(g, hs)
	// Reflection for grpcurl
	reflection.Register(g)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(IngestService, healthpb.HealthCheckResponse_SERVING)
	return &Health{grpc: g, hs: hs, logger: logger}
}

// ReportRun records the outcome of a pipeline pass.
func (h *Health) ReportRun(err error) {
	if err != nil {
		h.hs.SetServingStatus(IngestService, healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	h.hs.SetServingStatus(IngestService, healthpb.HealthCheckResponse_SERVING)
}

// ListenAndServe listens on addr and serves until ctx is done.
func (h *Health) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		h.logger.Error("listen failed", "addr", addr, "error", err)
		return err
	}
	return h.Serve(ctx, lis)
}

// Serve blocks until ctx is done, then stops gracefully.
func (h *Health) Serve(ctx context.Context, lis net.Listener) error {
	h.logger.Info("gRPC health serving", "addr", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- h.grpc.Serve(lis) }()

	select {
	case <-ctx.Done():
		h.logger.Info("shutting down health server")
		h.hs.Shutdown()
		h.grpc.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}
