package sweeper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/remind-keeper/internal/errs"
)

type fakeExpirer struct {
	mu      sync.Mutex
	calls   []time.Time
	deleted int64
	panicAt int // panic on this call number (1-based), 0 = never
}

func (f *fakeExpirer) SweepExpired(_ context.Context, now time.Time) int64 {
	f.mu.Lock()
	f.calls = append(f.calls, now)
	n := len(f.calls)
	f.mu.Unlock()
	if n == f.panicAt {
		panic("store exploded")
	}
	return f.deleted
}

func (f *fakeExpirer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestSweeper_TickUsesClock(t *testing.T) {
	t.Parallel()
	clk := clock.NewFake()
	at := time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)
	clk.Set(at)
	exp := &fakeExpirer{deleted: 2}
	s := New(exp, clk, zaptest.NewLogger(t))

	require.Equal(t, int64(2), s.Tick(context.Background()))
	clk.Add(time.Minute)
	require.Equal(t, int64(2), s.Tick(context.Background()))

	require.Equal(t, []time.Time{at, at.Add(time.Minute)}, exp.calls)
}

func TestSweeper_StartOnce(t *testing.T) {
	t.Parallel()
	s := New(&fakeExpirer{}, clock.NewFake(), zaptest.NewLogger(t))

	require.NoError(t, s.Start())
	require.ErrorIs(t, s.Start(), errs.ErrAlreadyStarted)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.ErrorIs(t, s.Start(), errs.ErrAlreadyStarted)
}

func TestSweeper_StopWithoutStart(t *testing.T) {
	t.Parallel()
	s := New(&fakeExpirer{}, nil, nil)
	require.NoError(t, s.Stop(context.Background()))
}

func TestSweeper_LoopSurvivesPanic(t *testing.T) {
	t.Parallel()
	exp := &fakeExpirer{panicAt: 1}
	s := New(exp, clock.NewFake(), zaptest.NewLogger(t), WithInterval(time.Second))

	require.NoError(t, s.Start())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	}()

	require.Eventually(t, func() bool { return exp.count() >= 2 }, 5*time.Second, 50*time.Millisecond)
}
