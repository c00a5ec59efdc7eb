package api

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/cuemby/lookout/pkg/events"
	"github.com/cuemby/lookout/pkg/log"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// DefaultSyncInterval is how often publisher states are pushed to the
// gRPC health service
const DefaultSyncInterval = 5 * time.Second

// Server serves the standard gRPC health service. Each publisher is a
// service named after it; the empty service name is the whole agent.
type Server struct {
	source   StatusSource
	grpc     *grpc.Server
	health   *health.Server
	logger   zerolog.Logger
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewServer creates a new gRPC health server
func NewServer(source StatusSource) *Server {
	logger := log.WithComponent("api")
	s := &Server{
		source:   source,
		health:   health.NewServer(),
		logger:   logger,
		interval: DefaultSyncInterval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	s.grpc = grpc.NewServer(grpc.ChainUnaryInterceptor(
		LoggingInterceptor(logger),
		ReadOnlyInterceptor(),
	))
	healthpb.RegisterHealthServer(s.grpc, s.health)
	return s
}

// Start starts the gRPC server and the health sync loop. It blocks until
// the server stops.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener
func (s *Server) Serve(lis net.Listener) error {
	s.Sync()
	go s.syncLoop()

	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health service listening")
	return s.grpc.Serve(lis)
}

// Stop gracefully stops the gRPC server
func (s *Server) Stop() {
	select {
	case <-s.stopCh:
		return
	default:
	}
	close(s.stopCh)

	s.health.Shutdown()
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
}

func (s *Server) syncLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sync()
		case <-s.stopCh:
			return
		}
	}
}

// Sync pushes the current publisher states into the health service
func (s *Server) Sync() {
	if s.source == nil {
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}

	overall := healthpb.HealthCheckResponse_SERVING
	for _, st := range s.source.Status() {
		status := healthpb.HealthCheckResponse_SERVING
		if st.State != events.StateRunning.String() {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			overall = healthpb.HealthCheckResponse_NOT_SERVING
		}
		s.health.SetServingStatus(st.Name, status)
	}
	s.health.SetServingStatus("", overall)
}

func contextWithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 5 * time.Second
	}
	return context.WithTimeout(context.Background(), d)
}
