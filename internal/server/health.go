package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const healthTimeout = 2 * time.Second

func (h *handlers) health(c *gin.Context) {
	if h.deps.DB == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	if err := PingDB(c.Request.Context(), h.deps.DB, h.logger, healthTimeout); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "ok"})
}

// NewGRPCServer returns a gRPC server exposing the standard health service
// (and reflection for grpcurl). The health status starts as SERVING.
func NewGRPCServer() (*grpc.Server, *health.Server) {
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(gs)
	return gs, hs
}

// WatchDatabase flips the gRPC health status with the database ping result
// every interval until ctx is done.
func WatchDatabase(ctx context.Context, hs *health.Server, drv *entsql.Driver, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	serving := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		err := PingDB(ctx, drv, logger, healthTimeout)
		switch {
		case err != nil && serving:
			serving = false
			hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			logger.Warn("health.database.down", "error", err)
		case err == nil && !serving:
			serving = true
			hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
			logger.Info("health.database.up")
		}
	}
}
