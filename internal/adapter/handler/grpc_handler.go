package handler

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// GRPCHealthHandler answers grpc.health.v1 checks by pinging the store on demand.
type GRPCHealthHandler struct {
	healthpb.UnimplementedHealthServer
	serviceName string
	store       Pinger
	logger      *zap.Logger
}

func NewGRPCHealthHandler(serviceName string, store Pinger, logger *zap.Logger) *GRPCHealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHealthHandler{serviceName: serviceName, store: store, logger: logger}
}

func (h *GRPCHealthHandler) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != h.serviceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", svc)
	}

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}
