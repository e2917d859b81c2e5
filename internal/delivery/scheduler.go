// Package delivery implements the durable deferred-delivery queue: the scheduler
// side that enqueues jobs and the worker side that fires them.
package delivery

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/remind-keeper/internal/errs"
	"github.com/and161185/remind-keeper/internal/model"
	"github.com/and161185/remind-keeper/internal/repository"
)

// Request describes one deferred notification.
type Request struct {
	ReminderID int64
	Target     int64
	Text       string
	FireAt     time.Time
}

// Key is the idempotency key of the request: the same owner, reminder, time and text enqueue once.
func (r Request) Key() string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(r.Text))
	return fmt.Sprintf("reminder:%d:%d:%d:%08x", r.Target, r.ReminderID, r.FireAt.Unix(), h.Sum32())
}

// Scheduler enqueues and manages delivery jobs.
type Scheduler struct {
	jobs repository.JobRepository
	log  *zap.Logger
}

// NewScheduler constructs a Scheduler.
func NewScheduler(jobs repository.JobRepository, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{jobs: jobs, log: log.Named("scheduler")}
}

// ScheduleDelivery enqueues a job that becomes eligible at req.FireAt.
// Broker failures are wrapped in errs.ErrQueue.
func (s *Scheduler) ScheduleDelivery(ctx context.Context, req Request) (uuid.UUID, error) {
	var link *int64
	if req.ReminderID > 0 {
		rid := req.ReminderID
		link = &rid
	}
	id, created, err := s.jobs.Enqueue(ctx, model.DeliveryJob{
		ReminderID: link,
		DedupeKey:  req.Key(),
		Target:     req.Target,
		Text:       req.Text,
		FireAt:     req.FireAt,
		RunAt:      req.FireAt,
		State:      model.JobPending,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue delivery: %w: %v", errs.ErrQueue, err)
	}
	if !created {
		s.log.Info("delivery already enqueued", zap.Int64("reminder", req.ReminderID), zap.String("job", id.String()))
	}
	return id, nil
}

// CancelForReminder cancels pending jobs of a reminder.
func (s *Scheduler) CancelForReminder(ctx context.Context, reminderID int64) (int64, error) {
	n, err := s.jobs.CancelForReminder(ctx, reminderID)
	if err != nil {
		return 0, fmt.Errorf("cancel delivery: %w: %v", errs.ErrQueue, err)
	}
	return n, nil
}

// DetachReminder unlinks pending jobs from a deleted reminder; they still fire.
func (s *Scheduler) DetachReminder(ctx context.Context, reminderID int64) (int64, error) {
	n, err := s.jobs.DetachReminder(ctx, reminderID)
	if err != nil {
		return 0, fmt.Errorf("detach delivery: %w: %v", errs.ErrQueue, err)
	}
	return n, nil
}

// PendingLinked lists future pending jobs still linked to a reminder.
func (s *Scheduler) PendingLinked(ctx context.Context, now time.Time) ([]model.DeliveryJob, error) {
	out, err := s.jobs.PendingLinked(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list pending deliveries: %w: %v", errs.ErrQueue, err)
	}
	return out, nil
}
