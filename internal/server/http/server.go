// Package httpserver exposes the reminder service over a JSON HTTP API.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/remind-keeper/internal/service"
)

// Pinger reports store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ticker runs one sweep on demand.
type Ticker interface {
	Tick(ctx context.Context) int64
}

// Server is the HTTP API.
type Server struct {
	svc      service.ReminderService
	store    Pinger
	sweeper  Ticker
	gatherer prometheus.Gatherer
	key      []byte
	clk      clock.Clock
	log      *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer serves metrics from g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option { return func(s *Server) { s.gatherer = g } }

// WithClock overrides the time source used for token validation.
func WithClock(c clock.Clock) Option { return func(s *Server) { s.clk = c } }

// New constructs a Server. key is the HS256 signing key for bearer tokens.
func New(svc service.ReminderService, store Pinger, sweeper Ticker, key []byte, log *zap.Logger, opts ...Option) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		svc:      svc,
		store:    store,
		sweeper:  sweeper,
		gatherer: prometheus.DefaultGatherer,
		key:      key,
		clk:      clock.New(),
		log:      log.Named("http"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router constructs the chi mux with all routes wired.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, s.recoverer, s.accessLog)

	// Public
	r.Get("/healthz", s.handleHealth())
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/sweep", s.handleSweep())
		r.Route("/owners/{ownerID}", func(r chi.Router) {
			r.Put("/", s.handlePutOwner())
			r.Get("/reminders", s.handleListReminders())
			r.Post("/reminders", s.handleCreateReminder())
			r.Put("/reminders/{id}", s.handleUpdateReminder())
			r.Delete("/reminders/{id}", s.handleDeleteReminder())
		})
	})
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
