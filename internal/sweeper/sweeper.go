// Package sweeper periodically deletes reminders whose fire time has passed.
package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/jmhodges/clock"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/and161185/remind-keeper/internal/errs"
	"github.com/and161185/remind-keeper/internal/metrics"
)

// DefaultInterval is the sweep period.
const DefaultInterval = 60 * time.Second

// Expirer removes expired reminders and never fails; see store.Store.
type Expirer interface {
	SweepExpired(ctx context.Context, now time.Time) int64
}

// Sweeper is a process-wide singleton; Start may succeed only once.
type Sweeper struct {
	store    Expirer
	clk      clock.Clock
	log      *zap.Logger
	metrics  *metrics.Metrics
	interval time.Duration

	mu      sync.Mutex
	started bool
	cron    *cron.Cron
	cancel  context.CancelFunc
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithInterval overrides the sweep period. robfig/cron rounds it up to one second.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithMetrics records swept counts.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Sweeper) { s.metrics = m } }

// New constructs a Sweeper.
func New(store Expirer, clk clock.Clock, log *zap.Logger, opts ...Option) *Sweeper {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Sweeper{store: store, clk: clk, log: log.Named("sweeper"), interval: DefaultInterval}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start launches the periodic loop. A second call returns errs.ErrAlreadyStarted.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errs.ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{s.log.Sugar()}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(func() { s.Tick(ctx) }))
	s.cron.Start()

	s.cancel = cancel
	s.started = true
	s.log.Info("sweeper started", zap.Duration("interval", s.interval))
	return nil
}

// Tick runs one sweep and returns the number of deleted reminders.
func (s *Sweeper) Tick(ctx context.Context) int64 {
	now := s.clk.Now()
	n := s.store.SweepExpired(ctx, now)
	s.metrics.Swept(n)
	if n > 0 {
		s.log.Info("swept expired reminders", zap.Int64("deleted", n), zap.Time("before", now))
	} else {
		s.log.Debug("sweep: nothing expired", zap.Time("before", now))
	}
	return n
}

// Stop halts the loop and waits for a running tick or ctx expiry.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	cancel()
	select {
	case <-c.Stop().Done():
		s.log.Info("sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ l *zap.SugaredLogger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debugw("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
