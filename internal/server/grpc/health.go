package grpcserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health-check name of the datastore.
const ServiceName = "socialkeeper.Datastore"

// StatusChecker reports backend liveness as "ok" or "error".
type StatusChecker interface {
	Status(ctx context.Context) string
}

// HealthMonitor mirrors the datastore status probe into a gRPC health server.
type HealthMonitor struct {
	hs       *health.Server
	check    StatusChecker
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger
}

// NewHealthMonitor creates a monitor polling check every interval.
func NewHealthMonitor(hs *health.Server, check StatusChecker, interval time.Duration, log *zap.Logger) *HealthMonitor {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := interval / 2
	if timeout <= 0 || timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	return &HealthMonitor{hs: hs, check: check, interval: interval, timeout: timeout, log: log}
}

// Probe runs one status check and publishes the result. It returns the status.
func (m *HealthMonitor) Probe(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	st := m.check.Status(ctx)
	serving := healthpb.HealthCheckResponse_SERVING
	if st != "ok" {
		serving = healthpb.HealthCheckResponse_NOT_SERVING
		m.log.Warn("datastore unhealthy", zap.String("status", st))
	}
	m.hs.SetServingStatus(ServiceName, serving)
	m.hs.SetServingStatus("", serving)
	return st
}

// Run probes immediately and then on every tick until ctx is done.
func (m *HealthMonitor) Run(ctx context.Context) {
	m.Probe(ctx)
	if m.interval <= 0 {
		return
	}
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Probe(ctx)
		}
	}
}
