package connector

import (
	"context"
	"fmt"
	"net"
	"time"

	"exchangeconnector/internal/core"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// HealthGRPCServer exposes the connector's readiness over the stock gRPC
// health checking protocol, so an orchestrator (k8s, a process supervisor)
// can probe liveness without speaking this connector's own wire format
// (spec.md §6, grounded on the teacher's ExchangeServer.Serve health
// registration).
type HealthGRPCServer struct {
	connector *Connector
	logger    core.ILogger

	grpcServer   *grpc.Server
	healthServer *health.Server
}

// NewHealthGRPCServer builds a health server reporting readiness for conn.
func NewHealthGRPCServer(conn *Connector, logger core.ILogger) *HealthGRPCServer {
	return &HealthGRPCServer{
		connector:    conn,
		logger:       logger.WithField("component", "health_grpc"),
		healthServer: health.NewServer(),
	}
}

// Serve listens on port and blocks serving gRPC health checks, polling the
// connector's readiness every pollInterval and updating the reported
// serving status accordingly. Returns when ctx is cancelled.
func (s *HealthGRPCServer) Serve(ctx context.Context, port int, pollInterval time.Duration) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("health_grpc: listen on port %d: %w", port, err)
	}

	s.grpcServer = grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.healthServer)

	go s.pollReadiness(ctx, pollInterval)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gRPC health server serving", "port", port)
		errCh <- s.grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.grpcServer.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *HealthGRPCServer) pollReadiness(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
			if s.connector.Ready() {
				status = grpc_health_v1.HealthCheckResponse_SERVING
			}
			s.healthServer.SetServingStatus("", status)
			s.healthServer.SetServingStatus("exchangeconnector.v1.Connector", status)
		}
	}
}
