// Command rk-worker delivers due reminders and reports its health over gRPC.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/remind-keeper/internal/app"
	"github.com/and161185/remind-keeper/internal/config"
	"github.com/and161185/remind-keeper/internal/delivery"
	"github.com/and161185/remind-keeper/internal/metrics"
	grpcserver "github.com/and161185/remind-keeper/internal/server/grpc"
	"github.com/and161185/remind-keeper/internal/transport/telegram"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	cfgPath := flag.String("config", "", "path to YAML config")
	dev := flag.Bool("dev", false, "enable server reflection (dev only)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		panic(err)
	}
	logger, err := cfg.Log.Logger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting worker",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("health_addr", cfg.Worker.HealthAddr),
	)

	if err := config.Validate(cfg, config.Requirements{Telegram: true}); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := app.OpenStorage(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}
	defer st.Close()

	hs := grpcserver.NewHealthServer(logger, *dev)
	lis, err := net.Listen("tcp", cfg.Worker.HealthAddr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}
	go func() {
		if err := hs.Serve(ctx, lis); err != nil {
			logger.Error("health server", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	if cfg.Worker.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.Worker.MetricsAddr, reg, logger)
	}

	w := delivery.NewWorker(st.Jobs, telegram.Open(cfg.Telegram.Token), delivery.Config{
		PollInterval: cfg.Worker.PollInterval,
		Lease:        cfg.Worker.Lease,
		BatchSize:    cfg.Worker.BatchSize,
		MaxAttempts:  cfg.Worker.MaxAttempts,
		BaseBackoff:  cfg.Worker.BaseBackoff,
		MaxBackoff:   cfg.Worker.MaxBackoff,
	}, logger,
		delivery.WithWorkerMetrics(metrics.New(reg)),
		delivery.WithHealthHook(hs.SetServing),
	)

	// the notifier authorises against Telegram on start; retry until it succeeds or we are stopped
	for {
		err := w.Run(ctx)
		if err == nil {
			break
		}
		logger.Error("worker start", zap.Error(err))
		select {
		case <-ctx.Done():
		case <-time.After(10 * time.Second):
			continue
		}
		break
	}
	logger.Info("shutdown complete")
}

func serveMetrics(ctx context.Context, addr string, g prometheus.Gatherer, log *zap.Logger) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(g, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server", zap.Error(err))
	}
}
