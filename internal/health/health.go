// Package health publishes the standard gRPC health service. The upgrade
// service reports NOT_SERVING while the abuse guard is at its ceiling.
package health

import (
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// UpgradeService is the service name whose status tracks guard load.
const UpgradeService = "ascend.Upgrade"

// LoadSource reports whether admission is currently saturated.
type LoadSource interface {
	Overloaded() bool
}

// Reporter keeps the health server in step with a LoadSource.
type Reporter struct {
	srv    *health.Server
	load   LoadSource
	logger *zap.Logger

	mu      sync.Mutex
	serving bool
}

// NewReporter creates a Reporter with every service SERVING.
//
// Precondition: load and logger must be non-nil.
func NewReporter(load LoadSource, logger *zap.Logger) *Reporter {
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	srv.SetServingStatus(UpgradeService, healthpb.HealthCheckResponse_SERVING)
	return &Reporter{srv: srv, load: load, logger: logger, serving: true}
}

// Register installs the health service on s.
func (r *Reporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, r.srv)
}

// Server returns the underlying health server.
func (r *Reporter) Server() *health.Server { return r.srv }

// Refresh samples the load source and updates UpgradeService. Transitions
// are logged.
func (r *Reporter) Refresh() {
	serving := !r.load.Overloaded()
	r.mu.Lock()
	changed := serving != r.serving
	r.serving = serving
	r.mu.Unlock()
	if !changed {
		return
	}
	status := healthpb.HealthCheckResponse_SERVING
	if !serving {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	r.srv.SetServingStatus(UpgradeService, status)
	r.logger.Info("health status changed",
		zap.String("service", UpgradeService),
		zap.String("status", status.String()),
	)
}

// Shutdown marks every service NOT_SERVING ahead of process exit.
func (r *Reporter) Shutdown() {
	r.srv.Shutdown()
}
