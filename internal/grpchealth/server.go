// Package grpchealth serves the standard gRPC health protocol. The gateway
// service status follows the model provider circuit breaker.
package grpchealth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/ashureev/mailsmith/internal/gateway"
)

// GatewayService is the health service name tracking the model gateway.
const GatewayService = "mailsmith.Gateway"

// Server wraps a gRPC server exposing grpc.health.v1.Health.
type Server struct {
	srv    *grpc.Server
	health *health.Server
	logger *slog.Logger
}

// New creates a health server. Both the overall status and the gateway
// service start as SERVING.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := grpc.NewServer(grpc.KeepaliveParams(keepalive.ServerParameters{
		Time:    30 * time.Second,
		Timeout: 10 * time.Second,
	}))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(GatewayService, healthpb.HealthCheckResponse_SERVING)

	return &Server{srv: srv, health: hs, logger: logger.With("component", "grpc_health")}
}

// SetGatewayState maps a breaker state to the gateway service status. Only
// an open circuit is NOT_SERVING.
func (s *Server) SetGatewayState(state gateway.BreakerState) {
	status := healthpb.HealthCheckResponse_SERVING
	if state == gateway.BreakerOpen {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(GatewayService, status)
	s.logger.Info("gateway health updated", "breaker", state, "status", status.String())
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen grpc health on %s: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is cancelled, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.health.Shutdown()
		s.srv.GracefulStop()
	}()

	s.logger.Info("gRPC health server listening", "addr", lis.Addr().String())
	err := s.srv.Serve(lis)
	if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve grpc health: %w", err)
	}
	<-stopped
	return nil
}
