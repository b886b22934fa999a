package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/invoice-extractor/internal/repository"
)

func TestGRPCHealthServing(t *testing.T) {
	gs, hs := NewGRPCServer()
	defer gs.Stop()

	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestWatchDatabaseFlipsStatus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	drv, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "health.db"), testLogger())
	require.NoError(t, err)

	gs, hs := NewGRPCServer()
	defer gs.Stop()

	done := make(chan struct{})
	go func() {
		WatchDatabase(ctx, hs, drv, 10*time.Millisecond, testLogger())
		close(done)
	}()

	require.NoError(t, drv.Close())
	assert.Eventually(t, func() bool {
		resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestHealthzDatabaseDown(t *testing.T) {
	s := newTestServer(t)
	drv, err := repository.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "down.db"), testLogger())
	require.NoError(t, err)
	require.NoError(t, drv.Close())

	s.router = NewRouter(Deps{Logger: testLogger(), DB: drv})
	w := s.doJSON("GET", "/healthz", nil)
	assert.Equal(t, 503, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"unavailable"`)
}
