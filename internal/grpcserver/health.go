package grpcserver

import (
	"context"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/patric-chuzhbe/userdir/internal/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker answers grpc.health.v1.Health/Check by pinging the storage
// backend. Both the empty service name and ServiceName are known.
type HealthChecker struct {
	healthpb.UnimplementedHealthServer
	db pinger
}

func NewHealthChecker(db pinger) *HealthChecker {
	return &HealthChecker{db: db}
}

func (h *HealthChecker) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if name := req.GetService(); name != "" && name != ServiceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", name)
	}

	if err := h.db.Ping(ctx); err != nil {
		logger.Log.Infoln("storage ping failed", "error", err)
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}

	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}
