package observability

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealthServer exposes the standard grpc.health.v1 service. The
// voice-reply service status follows the readiness checks.
type GRPCHealthServer struct {
	server   *grpc.Server
	health   *health.Server
	checks   map[string]HealthCheckFunc
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewGRPCHealthServer creates a health server that re-evaluates checks every interval.
func NewGRPCHealthServer(checks map[string]HealthCheckFunc, interval time.Duration) *GRPCHealthServer {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	hs := health.NewServer()
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	ctx, cancel := context.WithCancel(context.Background())

	return &GRPCHealthServer{
		server:   s,
		health:   hs,
		checks:   checks,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Serve evaluates the checks once, then serves on lis until Stop is called.
func (g *GRPCHealthServer) Serve(lis net.Listener) error {
	g.refresh(g.ctx)
	go g.loop(g.ctx)

	return g.server.Serve(lis)
}

func (g *GRPCHealthServer) loop(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.refresh(ctx)
		}
	}
}

func (g *GRPCHealthServer) refresh(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, healthy := RunChecks(checkCtx, g.checks)

	status := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus(ServiceName, status)
	g.health.SetServingStatus("", status)
}

// Stop marks every service NOT_SERVING and stops the listener.
func (g *GRPCHealthServer) Stop() {
	g.cancel()
	g.health.Shutdown()
	g.server.GracefulStop()
}
