package server

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cory-johannsen/harmony/internal/config"
)

// HealthService is the service name reported for the coordination server as a whole.
const HealthService = "harmony.Coordinator"

// HealthServer exposes the standard gRPC health checking protocol so
// orchestrators can probe the process without speaking the game protocol.
type HealthServer struct {
	cfg    config.HealthConfig
	logger *zap.Logger
	grpc   *grpc.Server
	health *health.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewHealthServer creates a HealthServer that reports NOT_SERVING until
// SetServing is called.
//
// Precondition: logger must be non-nil.
func NewHealthServer(cfg config.HealthConfig, logger *zap.Logger) *HealthServer {
	gs := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return &HealthServer{
		cfg:    cfg,
		logger: logger,
		grpc:   gs,
		health: hs,
	}
}

// SetServing flips both the overall and the named service status.
func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(HealthService, status)
}

// ListenAndServe binds the configured address and serves health checks until
// Stop is called.
//
// Postcondition: Returns nil after Stop, or the listen/serve error.
func (h *HealthServer) ListenAndServe() error {
	ln, err := net.Listen("tcp", h.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", h.cfg.Addr(), err)
	}
	h.mu.Lock()
	h.listener = ln
	h.mu.Unlock()

	h.logger.Info("health service listening", zap.String("addr", ln.Addr().String()))
	if err := h.grpc.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serving health checks: %w", err)
	}
	return nil
}

// Stop reports NOT_SERVING to watchers and stops the gRPC server.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.grpc.GracefulStop()
	h.logger.Info("health service stopped")
}

// Addr returns the bound address, or nil before ListenAndServe has bound.
func (h *HealthServer) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}
