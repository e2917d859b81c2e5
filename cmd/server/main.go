// Command rk-server runs the Telegram bot, the HTTP API and the expiry sweeper.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tg "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/and161185/remind-keeper/internal/app"
	"github.com/and161185/remind-keeper/internal/config"
	"github.com/and161185/remind-keeper/internal/delivery"
	"github.com/and161185/remind-keeper/internal/extract"
	"github.com/and161185/remind-keeper/internal/metrics"
	httpserver "github.com/and161185/remind-keeper/internal/server/http"
	"github.com/and161185/remind-keeper/internal/service"
	"github.com/and161185/remind-keeper/internal/store"
	"github.com/and161185/remind-keeper/internal/sweeper"
	"github.com/and161185/remind-keeper/internal/transport/telegram"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, reconciles storage and starts the front-ends.
func main() {
	cfgPath := flag.String("config", "", "path to YAML config")
	noBot := flag.Bool("no-telegram", false, "run without the Telegram front-end")
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
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.HTTP.Addr),
	)

	if err := config.Validate(cfg, config.Requirements{Telegram: !*noBot, JWT: true}); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}
	policy, err := service.ParsePolicy(cfg.Delivery.Policy)
	if err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := app.OpenStorage(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	clk := clock.New()
	loc := cfg.Location()
	rs := store.New(st.Owners, st.Reminders, logger)
	sched := delivery.NewScheduler(st.Jobs, logger)
	svc := service.NewReminderService(rs, sched, extract.New(loc, clk), logger,
		service.WithPolicy(policy),
		service.WithMetrics(m),
		service.WithClock(clk),
	)

	if n, err := svc.Reconcile(ctx); err != nil {
		logger.Warn("reconcile", zap.Error(err))
	} else if n > 0 {
		logger.Info("reconciled reminders", zap.Int("restored", n))
	}

	sw := sweeper.New(rs, clk, logger, sweeper.WithInterval(cfg.Sweeper.Interval), sweeper.WithMetrics(m))
	if err := startSweeper(ctx, sw); err != nil {
		logger.Fatal("sweeper", zap.Error(err))
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	api := httpserver.New(svc, rs, sw, []byte(cfg.HTTP.JWTKey), logger, httpserver.WithGatherer(reg))
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := api.ListenAndServe(ctx, cfg.HTTP.Addr); err != nil {
			errCh <- err
		}
	}()

	if !*noBot {
		botAPI, err := tg.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			logger.Fatal("telegram auth", zap.Error(err))
		}
		botAPI.Debug = cfg.Telegram.Debug
		logger.Info("authorized on telegram", zap.String("account", botAPI.Self.UserName))

		bot := telegram.NewBot(botAPI, svc, loc, logger)
		if err := bot.RegisterCommands(); err != nil {
			logger.Warn("set bot commands", zap.Error(err))
		}
		u := tg.NewUpdate(0)
		u.Timeout = cfg.Telegram.Timeout
		updates := botAPI.GetUpdatesChan(u)

		wg.Add(1)
		go func() {
			defer wg.Done()
			bot.Run(ctx, updates)
		}()
		go func() {
			<-ctx.Done()
			botAPI.StopReceivingUpdates()
		}()
	}

	// Wait for stop
	failed := false
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		failed = true
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sw.Stop(shutdownCtx); err != nil {
		logger.Warn("sweeper stop", zap.Error(err))
	}
	wg.Wait()
	logger.Info("shutdown complete")
	if failed {
		st.Close()
		_ = logger.Sync()
		os.Exit(1)
	}
}

// startSweeper clears reminders that expired while the process was down, then starts the periodic loop.
func startSweeper(ctx context.Context, sw *sweeper.Sweeper) error {
	sw.Tick(ctx)
	return sw.Start()
}
