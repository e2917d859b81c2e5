package main

import (
	"context"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/remind-keeper/internal/errs"
	"github.com/and161185/remind-keeper/internal/sweeper"
)

type countingExpirer struct {
	calls []time.Time
}

func (c *countingExpirer) SweepExpired(_ context.Context, now time.Time) int64 {
	c.calls = append(c.calls, now)
	return 3
}

func TestStartSweeper_SweepsBeforeFirstInterval(t *testing.T) {
	clk := clock.NewFake()
	at := time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)
	clk.Set(at)
	exp := &countingExpirer{}
	sw := sweeper.New(exp, clk, zaptest.NewLogger(t), sweeper.WithInterval(time.Hour))

	require.NoError(t, startSweeper(context.Background(), sw))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sw.Stop(ctx)
	})

	require.Equal(t, []time.Time{at}, exp.calls)
	require.ErrorIs(t, startSweeper(context.Background(), sw), errs.ErrAlreadyStarted)
}
