// Package grpcserver hosts the gRPC surface of the datastore: health checks,
// interceptors and a serve loop with graceful shutdown.
package grpcserver

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const stopTimeout = 5 * time.Second

// Server couples a gRPC server with its health endpoint.
type Server struct {
	GRPC   *grpc.Server
	Health *health.Server
	log    *zap.Logger
}

// New builds a gRPC server with the recover, logging and error interceptors and
// a registered health service. Reflection is enabled when dev is set.
func New(log *zap.Logger, dev bool, opts ...grpc.ServerOption) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	opts = append(opts, grpc.ChainUnaryInterceptor(
		RecoverUnary(log),
		LoggingUnary(log),
		// Datastore handlers registered on GRPC get their errors mapped here.
		// Statuses from the health service pass through unchanged.
		ErrorsUnary(),
	))
	s := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if dev {
		reflection.Register(s)
	}
	return &Server{GRPC: s, Health: hs, log: log}
}

// Serve accepts connections on lis until ctx is done, then stops gracefully,
// forcing the stop after a timeout.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", lis.Addr().String()))
		errCh <- s.GRPC.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.Health.Shutdown()
		done := make(chan struct{})
		go func() {
			s.GRPC.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(stopTimeout):
			s.GRPC.Stop()
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}
