package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/inbox-ledger/internal/poller"
)

// PollerService is the health service name that tracks the poll loop.
const PollerService = "inbox.poller"

// Health is a gRPC server exposing only health and reflection. The poller
// service is SERVING while a cycle has finished within two intervals.
type Health struct {
	grpc   *grpc.Server
	health *health.Server
	logger *slog.Logger
	maxAge time.Duration
	now    func() time.Time

	mu        sync.Mutex
	lastCycle time.Time
	status    healthpb.HealthCheckResponse_ServingStatus
}

func NewHealth(interval time.Duration, logger *slog.Logger) *Health {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(PollerService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Health{
		grpc:   gs,
		health: hs,
		logger: logger,
		maxAge: 2 * interval,
		now:    time.Now,
		status: healthpb.HealthCheckResponse_NOT_SERVING,
	}
}

// ObservePoller is passed to poller.WithObserver. Entering Sleeping means a
// cycle just finished.
func (h *Health) ObservePoller(s poller.State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s == poller.Sleeping {
		h.lastCycle = h.now()
	}
	h.refreshLocked(s.String())
}

// Watch re-evaluates freshness until ctx is done, so a loop stuck in one
// cycle goes NOT_SERVING without any further state change.
func (h *Health) Watch(ctx context.Context) {
	t := time.NewTicker(h.maxAge / 4)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.refresh()
		}
	}
}

func (h *Health) refresh() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refreshLocked("")
}

func (h *Health) refreshLocked(state string) {
	want := healthpb.HealthCheckResponse_NOT_SERVING
	if !h.lastCycle.IsZero() && h.now().Sub(h.lastCycle) <= h.maxAge {
		want = healthpb.HealthCheckResponse_SERVING
	}
	if want == h.status {
		return
	}
	h.status = want
	h.health.SetServingStatus(PollerService, want)
	if want == healthpb.HealthCheckResponse_SERVING {
		h.logger.Info("poller healthy", "service", PollerService, "poller_state", state)
		return
	}
	h.logger.Warn("poller unhealthy", "service", PollerService, "poller_state", state,
		"last_cycle", h.lastCycle, "max_age", h.maxAge.String())
}

// Serve blocks until the listener fails or Shutdown is called.
func (h *Health) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		h.logger.Error("failed to listen on address", "addr", addr, "error", err)
		return err
	}
	h.logger.Info("health server listening", "addr", lis.Addr().String())
	if err := h.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (h *Health) Shutdown(ctx context.Context) {
	h.health.Shutdown()
	stopped := make(chan struct{})
	go func() {
		h.grpc.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		h.grpc.Stop()
	}
}
