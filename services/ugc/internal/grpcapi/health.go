// Package grpcapi serves the standard gRPC health protocol, driven by a
// periodic probe of the content store.
package grpcapi

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/example/blog-ugc/internal/platform/logging"
)

// ServiceName is the name reported alongside the overall "" status.
const ServiceName = "ugc"

type HealthProbe struct {
	server   *health.Server
	check    func(context.Context) error
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger
}

// NewHealthProbe starts out NOT_SERVING until the first successful check.
func NewHealthProbe(check func(context.Context) error, interval time.Duration, log *zap.Logger) *HealthProbe {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	log = logging.OrNop(log)
	p := &HealthProbe{
		server:   health.NewServer(),
		check:    check,
		interval: interval,
		timeout:  2 * time.Second,
		log:      log,
	}
	p.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return p
}

func (p *HealthProbe) set(st healthpb.HealthCheckResponse_ServingStatus) {
	p.server.SetServingStatus("", st)
	p.server.SetServingStatus(ServiceName, st)
}

// Probe runs the check once and publishes the result.
func (p *HealthProbe) Probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.check(ctx); err != nil {
		p.log.Warn("health probe failed", zap.Error(err))
		p.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	p.set(healthpb.HealthCheckResponse_SERVING)
}

// Run probes until ctx is done, then reports NOT_SERVING for good.
func (p *HealthProbe) Run(ctx context.Context) {
	p.Probe(ctx)
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			p.server.Shutdown()
			return
		case <-t.C:
			p.Probe(ctx)
		}
	}
}

// Register attaches the health service and reflection to s.
func (p *HealthProbe) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, p.server)
	reflection.Register(s)
}
