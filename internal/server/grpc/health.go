package grpcserver

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// DeliveryService is the health service name reported by the worker.
const DeliveryService = "remindkeeper.Delivery"

// HealthServer serves grpc.health.v1.Health for the delivery worker.
// Both the overall status ("") and DeliveryService follow SetServing.
type HealthServer struct {
	srv *grpc.Server
	hs  *health.Server
	log *zap.Logger
}

// NewHealthServer builds the gRPC server. reflect enables server reflection (dev only).
func NewHealthServer(log *zap.Logger, reflect bool) *HealthServer {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("grpc")
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoverUnary(log),
			LoggingUnary(log),
		),
		grpc.ChainStreamInterceptor(RecoverStream(log)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if reflect {
		reflection.Register(s)
	}
	h := &HealthServer{srv: s, hs: hs, log: log}
	h.SetServing(false)
	return h
}

// SetServing flips the reported status.
func (h *HealthServer) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.hs.SetServingStatus("", st)
	h.hs.SetServingStatus(DeliveryService, st)
	h.log.Info("health status", zap.String("status", st.String()))
}

// Serve accepts connections on lis until ctx is done, then stops gracefully
// (forcefully after 5s).
func (h *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		h.log.Info("listening", zap.String("addr", lis.Addr().String()))
		errCh <- h.srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	case <-ctx.Done():
		h.hs.Shutdown()
		done := make(chan struct{})
		go func() {
			h.srv.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			h.srv.Stop()
		}
		return nil
	}
}
