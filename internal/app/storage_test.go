package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/remind-keeper/internal/config"
	"github.com/and161185/remind-keeper/internal/delivery"
	"github.com/and161185/remind-keeper/internal/errs"
	"github.com/and161185/remind-keeper/internal/extract"
	"github.com/and161185/remind-keeper/internal/service"
	"github.com/and161185/remind-keeper/internal/store"
	"github.com/and161185/remind-keeper/internal/sweeper"
)

func memDSN(t *testing.T) string {
	return fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
}

func TestOpenStorage_UnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := OpenStorage(context.Background(), config.DatabaseConfig{Driver: "mysql"}, zaptest.NewLogger(t))
	require.ErrorContains(t, err, "unsupported")
}

// TestPipeline_SQLite runs submit, deliver, sweep and reconcile against one in-memory database.
func TestPipeline_SQLite(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)
	st, err := OpenStorage(ctx, config.DatabaseConfig{Driver: "sqlite", DSN: memDSN(t)}, log)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	clk := clock.NewFake()
	clk.Set(time.Date(2030, 6, 1, 9, 0, 0, 0, time.UTC))

	rs := store.New(st.Owners, st.Reminders, log)
	sched := delivery.NewScheduler(st.Jobs, log)
	svc := service.NewReminderService(rs, sched, extract.New(time.UTC, clk), log, service.WithClock(clk))

	svc.RegisterOwner(ctx, 100, "ann")
	sub, err := svc.Submit(ctx, 100, "water the plants in 25 hours")
	require.NoError(t, err)
	require.Positive(t, sub.Reminder.ID)

	list := svc.ListForOwner(ctx, 100)
	require.Len(t, list, 1)
	require.Equal(t, sub.Reminder.ID, list[0].ID)

	// lost row is restored from its pending delivery
	require.Equal(t, "deleted", rs.DeleteReminder(ctx, 100, sub.Reminder.ID).String())
	n, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, svc.ListForOwner(ctx, 100), 1)

	// a user delete detaches the delivery, so reconcile leaves it alone
	require.NoError(t, svc.DeleteByPosition(ctx, 100, 1))
	n, err = svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, svc.ListForOwner(ctx, 100))

	// the delivery still fires
	n2 := &countingNotifier{}
	w := delivery.NewWorker(st.Jobs, func(context.Context) (delivery.Notifier, error) { return n2, nil },
		delivery.Config{}, log, delivery.WithClock(clk))
	require.NoError(t, w.Start(ctx))
	defer w.Shutdown()

	got, err := w.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, got, "not due yet")

	clk.Add(26 * time.Hour)
	got, err = w.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, got)
	require.Equal(t, []string{delivery.Message("water the plants")}, n2.msgs)

	// expired rows are swept
	_, err = svc.Submit(ctx, 100, "stretch in 5 minutes")
	require.NoError(t, err)
	clk.Add(10 * time.Minute)
	sw := sweeper.New(rs, clk, log)
	require.Equal(t, int64(1), sw.Tick(ctx))
}

type pipeline struct {
	st    *Storage
	rs    *store.Store
	sched *delivery.Scheduler
	svc   *service.ReminderServiceImpl
	clk   clock.FakeClock
}

func newPipeline(t *testing.T, start time.Time, opts ...service.Option) *pipeline {
	t.Helper()
	ctx := context.Background()
	log := zaptest.NewLogger(t)
	st, err := OpenStorage(ctx, config.DatabaseConfig{Driver: "sqlite", DSN: memDSN(t)}, log)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	clk := clock.NewFake()
	clk.Set(start)
	rs := store.New(st.Owners, st.Reminders, log)
	sched := delivery.NewScheduler(st.Jobs, log)
	opts = append([]service.Option{service.WithClock(clk)}, opts...)
	svc := service.NewReminderService(rs, sched, extract.New(time.UTC, clk), log, opts...)
	return &pipeline{st: st, rs: rs, sched: sched, svc: svc, clk: clk}
}

func (p *pipeline) deliverDue(t *testing.T) []string {
	t.Helper()
	n := &countingNotifier{}
	w := delivery.NewWorker(p.st.Jobs, func(context.Context) (delivery.Notifier, error) { return n, nil },
		delivery.Config{}, zaptest.NewLogger(t), delivery.WithClock(p.clk))
	require.NoError(t, w.Start(context.Background()))
	defer w.Shutdown()
	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	return n.msgs
}

func TestReschedule_EditAndEditBackStillDelivers(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, time.Date(2030, 6, 1, 9, 0, 0, 0, time.UTC), service.WithPolicy(service.PolicyReschedule))

	p.svc.RegisterOwner(ctx, 100, "ann")
	sub, err := p.svc.Submit(ctx, 100, "water the plants in 25 hours")
	require.NoError(t, err)
	id, fireAt := sub.Reminder.ID, sub.Reminder.FireAt

	require.NoError(t, p.svc.EditByID(ctx, 100, id, "other", p.clk.Now().Add(time.Hour)))
	require.NoError(t, p.svc.EditByID(ctx, 100, id, "water the plants", fireAt))

	linked, err := p.sched.PendingLinked(ctx, p.clk.Now())
	require.NoError(t, err)
	require.Len(t, linked, 1)
	require.Equal(t, id, *linked[0].ReminderID)
	require.Equal(t, "water the plants", linked[0].Text)

	p.clk.Add(26 * time.Hour)
	require.Equal(t, []string{delivery.Message("water the plants")}, p.deliverDue(t))
}

func TestReschedule_UnchangedEditKeepsOneDelivery(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, time.Date(2030, 6, 1, 9, 0, 0, 0, time.UTC), service.WithPolicy(service.PolicyReschedule))

	p.svc.RegisterOwner(ctx, 100, "ann")
	sub, err := p.svc.Submit(ctx, 100, "stretch in 2 hours")
	require.NoError(t, err)
	require.NoError(t, p.svc.EditByID(ctx, 100, sub.Reminder.ID, sub.Reminder.Text, sub.Reminder.FireAt))

	p.clk.Add(3 * time.Hour)
	require.Equal(t, []string{delivery.Message("stretch")}, p.deliverDue(t))
}

func TestSweep_SecondRunDeletesNothing(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, time.Date(2030, 6, 1, 9, 0, 0, 0, time.UTC))

	p.svc.RegisterOwner(ctx, 5, "eve")
	_, err := p.svc.Submit(ctx, 5, "stretch in 5 minutes")
	require.NoError(t, err)
	_, err = p.svc.Submit(ctx, 5, "tea in 2 hours")
	require.NoError(t, err)

	p.clk.Add(10 * time.Minute)
	require.Equal(t, int64(1), p.rs.SweepExpired(ctx, p.clk.Now()))
	require.Zero(t, p.rs.SweepExpired(ctx, p.clk.Now()))
	require.Len(t, p.svc.ListForOwner(ctx, 5), 1)
}

func TestScenario_TomorrowAtNineIsSweptAfterItFires(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, time.Date(2030, 6, 1, 15, 0, 0, 0, time.UTC))
	sw := sweeper.New(p.rs, p.clk, zaptest.NewLogger(t))

	p.svc.RegisterOwner(ctx, 1, "kim")
	sub, err := p.svc.Submit(ctx, 1, "remind me tomorrow at 9")
	require.NoError(t, err)
	require.Equal(t, "remind me", sub.Reminder.Text)
	require.Equal(t, time.Date(2030, 6, 2, 9, 0, 0, 0, time.UTC), sub.Reminder.FireAt)
	require.Len(t, p.svc.ListForOwner(ctx, 1), 1)

	require.Zero(t, sw.Tick(ctx))
	p.clk.Add(19 * time.Hour)
	require.Equal(t, int64(1), sw.Tick(ctx))
	require.Empty(t, p.svc.ListForOwner(ctx, 1))
}

func TestScenario_DeleteFirstPositionShiftsList(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, time.Date(2030, 6, 1, 9, 0, 0, 0, time.UTC))

	p.svc.RegisterOwner(ctx, 7, "seven")
	for _, text := range []string{"first in 1 hour", "second in 2 hours", "third in 3 hours"} {
		_, err := p.svc.Submit(ctx, 7, text)
		require.NoError(t, err)
	}
	before := p.svc.ListForOwner(ctx, 7)
	require.Len(t, before, 3)

	require.NoError(t, p.svc.DeleteByPosition(ctx, 7, 1))

	after := p.svc.ListForOwner(ctx, 7)
	require.Len(t, after, 2)
	require.Equal(t, before[1].ID, after[0].ID)
	require.Equal(t, "second", after[0].Text)
	require.Equal(t, before[2].ID, after[1].ID)

	require.ErrorIs(t, p.svc.DeleteByPosition(ctx, 7, 3), errs.ErrPositionOutOfRange)
}

func TestOpenStorage_SQLiteEnforcesOwnerForeignKey(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, time.Date(2030, 6, 1, 9, 0, 0, 0, time.UTC))

	_, ok := p.rs.InsertReminder(ctx, 404, "nobody owns this", p.clk.Now().Add(time.Hour))
	require.False(t, ok)

	p.svc.RegisterOwner(ctx, 8, "eight")
	_, ok = p.rs.InsertReminder(ctx, 8, "owned", p.clk.Now().Add(time.Hour))
	require.True(t, ok)
	require.Len(t, p.svc.ListForOwner(ctx, 8), 1)
}

type countingNotifier struct{ msgs []string }

func (c *countingNotifier) Deliver(_ context.Context, _ int64, text string) error {
	c.msgs = append(c.msgs, text)
	return nil
}

func (c *countingNotifier) Close() error { return nil }
