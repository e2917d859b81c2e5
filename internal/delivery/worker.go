package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"

	"github.com/and161185/remind-keeper/internal/metrics"
	"github.com/and161185/remind-keeper/internal/model"
	"github.com/and161185/remind-keeper/internal/repository"
)

// MessagePrefix heads every delivered reminder.
const MessagePrefix = "It's time:\n"

// Message renders the notification text for a reminder body.
func Message(text string) string { return MessagePrefix + text }

// Notifier is the outbound transport client used by the worker.
type Notifier interface {
	// Deliver sends text to the owner identified by target.
	Deliver(ctx context.Context, target int64, text string) error
	// Close releases the client.
	Close() error
}

// OpenFunc acquires the Notifier on worker startup.
type OpenFunc func(ctx context.Context) (Notifier, error)

// Config tunes the worker loop.
type Config struct {
	PollInterval time.Duration
	Lease        time.Duration
	BatchSize    int
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

func (c *Config) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.Lease <= 0 {
		c.Lease = time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 5 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Minute
	}
}

// Worker claims due jobs and hands them to the Notifier.
// A job whose lease runs out before completion is claimed again, so a
// notification may be delivered more than once but is never lost.
type Worker struct {
	jobs    repository.JobRepository
	open    OpenFunc
	cfg     Config
	clk     clock.Clock
	log     *zap.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	notifier Notifier
	healthy  bool
	onHealth func(bool)
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithClock overrides the time source.
func WithClock(c clock.Clock) WorkerOption { return func(w *Worker) { w.clk = c } }

// WithWorkerMetrics records delivery counters.
func WithWorkerMetrics(m *metrics.Metrics) WorkerOption { return func(w *Worker) { w.metrics = m } }

// WithHealthHook is called whenever the poll result flips between healthy and unhealthy.
func WithHealthHook(f func(bool)) WorkerOption { return func(w *Worker) { w.onHealth = f } }

// NewWorker constructs a Worker.
func NewWorker(jobs repository.JobRepository, open OpenFunc, cfg Config, log *zap.Logger, opts ...WorkerOption) *Worker {
	cfg.defaults()
	if log == nil {
		log = zap.NewNop()
	}
	w := &Worker{jobs: jobs, open: open, cfg: cfg, clk: clock.New(), log: log.Named("worker")}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Start acquires the transport client.
func (w *Worker) Start(ctx context.Context) error {
	n, err := w.open(ctx)
	if err != nil {
		return fmt.Errorf("open notifier: %w", err)
	}
	w.mu.Lock()
	w.notifier = n
	w.mu.Unlock()
	w.log.Info("worker started",
		zap.Duration("poll", w.cfg.PollInterval),
		zap.Duration("lease", w.cfg.Lease),
		zap.Int("batch", w.cfg.BatchSize),
	)
	return nil
}

// Run starts the worker, polls until ctx is done, then shuts down.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Shutdown()

	t := time.NewTicker(w.cfg.PollInterval)
	defer t.Stop()
	for {
		if _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.log.Error("poll", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// RunOnce claims one batch of due jobs and processes it. Returns the number of jobs handled.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	jobs, err := w.jobs.ClaimDue(ctx, w.clk.Now(), w.cfg.Lease, w.cfg.BatchSize)
	w.setHealthy(err == nil)
	if err != nil {
		return 0, fmt.Errorf("claim due jobs: %w", err)
	}
	for _, j := range jobs {
		w.process(ctx, j)
	}
	return len(jobs), nil
}

// Shutdown releases the transport client.
func (w *Worker) Shutdown() {
	w.mu.Lock()
	n := w.notifier
	w.notifier = nil
	w.mu.Unlock()
	if n == nil {
		return
	}
	if err := n.Close(); err != nil {
		w.log.Warn("close notifier", zap.Error(err))
	}
	w.log.Info("worker stopped")
}

// Healthy reports whether the last poll reached the queue.
func (w *Worker) Healthy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.healthy
}

func (w *Worker) setHealthy(ok bool) {
	w.mu.Lock()
	changed := w.healthy != ok
	w.healthy = ok
	hook := w.onHealth
	w.mu.Unlock()
	if changed && hook != nil {
		hook(ok)
	}
}

func (w *Worker) process(ctx context.Context, j model.DeliveryJob) {
	w.mu.Lock()
	n := w.notifier
	w.mu.Unlock()

	log := w.log.With(
		zap.String("job", j.ID.String()),
		zap.Int64("target", j.Target),
		zap.Int("attempt", j.Attempts),
	)

	var err error
	if n == nil {
		err = errors.New("notifier not started")
	} else {
		err = n.Deliver(ctx, j.Target, Message(j.Text))
	}
	lag := w.clk.Since(j.FireAt).Seconds()

	if err == nil {
		w.metrics.Delivery("ok", lag)
		if mErr := w.jobs.MarkDone(ctx, j.ID); mErr != nil {
			// lease expiry will redeliver; duplicates are acceptable
			log.Error("mark done", zap.Error(mErr))
			return
		}
		log.Info("delivered", zap.Float64("lag_s", lag))
		return
	}

	if j.Attempts >= w.cfg.MaxAttempts {
		w.metrics.Delivery("failed", lag)
		log.Error("delivery failed permanently", zap.Error(err))
		if mErr := w.jobs.MarkFailed(ctx, j.ID, err.Error()); mErr != nil {
			log.Error("mark failed", zap.Error(mErr))
		}
		return
	}

	w.metrics.Delivery("retry", lag)
	next := w.clk.Now().Add(w.backoff(j.Attempts))
	log.Warn("delivery failed, retrying", zap.Time("next", next), zap.Error(err))
	if mErr := w.jobs.MarkRetry(ctx, j.ID, next, err.Error()); mErr != nil {
		log.Error("mark retry", zap.Error(mErr))
	}
}

// backoff doubles per attempt starting at BaseBackoff, capped at MaxBackoff.
func (w *Worker) backoff(attempt int) time.Duration {
	d := w.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= w.cfg.MaxBackoff {
			return w.cfg.MaxBackoff
		}
	}
	return d
}
