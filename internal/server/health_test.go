package server

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/inbox-ledger/internal/poller"
)

func pollerStatus(t *testing.T, h *Health) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := h.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: PollerService})
	require.NoError(t, err)
	return resp.GetStatus()
}

func newTestHealth(interval time.Duration) (*Health, *time.Time) {
	now := time.Date(2025, 8, 2, 10, 0, 0, 0, time.UTC)
	h := NewHealth(interval, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.now = func() time.Time { return now }
	return h, &now
}

func TestHealthServingAfterCompletedCycle(t *testing.T) {
	h, _ := newTestHealth(time.Minute)

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, pollerStatus(t, h))

	h.ObservePoller(poller.Running)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, pollerStatus(t, h), "first cycle has not finished")

	h.ObservePoller(poller.Sleeping)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, pollerStatus(t, h))

	h.ObservePoller(poller.Idle)
	h.ObservePoller(poller.Running)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, pollerStatus(t, h))

	h.Shutdown(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, pollerStatus(t, h))
}

func TestHealthStaleCycleIsNotServing(t *testing.T) {
	h, now := newTestHealth(time.Minute)
	h.ObservePoller(poller.Running)
	h.ObservePoller(poller.Sleeping)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, pollerStatus(t, h))

	// stuck in the next cycle
	h.ObservePoller(poller.Running)
	*now = now.Add(2*time.Minute + time.Second)
	h.refresh()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, pollerStatus(t, h))

	h.ObservePoller(poller.Sleeping)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, pollerStatus(t, h))
}

func TestHealthWatchRefreshes(t *testing.T) {
	h, _ := newTestHealth(40 * time.Millisecond)
	h.ObservePoller(poller.Sleeping)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, pollerStatus(t, h))

	h.mu.Lock()
	h.now = func() time.Time { return time.Date(2025, 8, 2, 11, 0, 0, 0, time.UTC) }
	h.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Watch(ctx)

	assert.Eventually(t, func() bool {
		return pollerStatus(t, h) == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 5*time.Millisecond)
}
