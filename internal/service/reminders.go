// Package service contains the reminder application service.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jmhodges/clock"
	"go.uber.org/zap"

	"github.com/and161185/remind-keeper/internal/delivery"
	"github.com/and161185/remind-keeper/internal/errs"
	"github.com/and161185/remind-keeper/internal/metrics"
	"github.com/and161185/remind-keeper/internal/model"
)

// MinLead is the minimum distance between now and a reminder's fire time.
const MinLead = time.Minute

// Policy decides what happens to an already scheduled delivery when its reminder changes.
type Policy string

const (
	// PolicyStale leaves scheduled deliveries untouched: an edited or deleted
	// reminder still fires with its original text and time.
	PolicyStale Policy = "stale"
	// PolicyReschedule cancels the pending delivery and, on edit, schedules a new one.
	PolicyReschedule Policy = "reschedule"
)

// ParsePolicy maps a config value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyStale:
		return PolicyStale, nil
	case PolicyReschedule:
		return PolicyReschedule, nil
	default:
		return "", fmt.Errorf("%w: unknown delivery policy %q", errs.ErrValidation, s)
	}
}

// Extractor finds the message body and target time in free text.
type Extractor interface {
	Extract(text string) (model.Extraction, error)
}

// Store is the error-absorbing reminder store.
type Store interface {
	CreateOwnerIfAbsent(ctx context.Context, identity int64, displayName string)
	NextReminderID(ctx context.Context) (int64, bool)
	InsertReminder(ctx context.Context, ownerID int64, text string, fireAt time.Time) (int64, bool)
	InsertReminderWithID(ctx context.Context, r model.Reminder) bool
	RestoreReminder(ctx context.Context, r model.Reminder) bool
	ListReminders(ctx context.Context, ownerID int64) []model.Reminder
	DeleteReminder(ctx context.Context, ownerID, id int64) model.Outcome
	UpdateReminder(ctx context.Context, ownerID, id int64, text string, fireAt time.Time) model.Outcome
}

// Scheduler is the delivery queue client.
type Scheduler interface {
	ScheduleDelivery(ctx context.Context, req delivery.Request) (uuid.UUID, error)
	CancelForReminder(ctx context.Context, reminderID int64) (int64, error)
	DetachReminder(ctx context.Context, reminderID int64) (int64, error)
	PendingLinked(ctx context.Context, now time.Time) ([]model.DeliveryJob, error)
}

// ReminderService defines reminder operations exposed to transports.
type ReminderService interface {
	// RegisterOwner records the owner on first contact.
	RegisterOwner(ctx context.Context, ownerID int64, displayName string)
	// Submit turns free text into a scheduled and stored reminder.
	Submit(ctx context.Context, ownerID int64, raw string) (model.Submission, error)
	// ListForOwner returns the owner's reminders in insertion order.
	ListForOwner(ctx context.Context, ownerID int64) []model.Reminder
	// EditByPosition edits the reminder at a 1-based list position.
	EditByPosition(ctx context.Context, ownerID int64, pos int, text string, fireAt time.Time) error
	// DeleteByPosition deletes the reminder at a 1-based list position.
	DeleteByPosition(ctx context.Context, ownerID int64, pos int) error
	// EditByID edits a reminder by its store id.
	EditByID(ctx context.Context, ownerID, id int64, text string, fireAt time.Time) error
	// DeleteByID deletes a reminder by its store id.
	DeleteByID(ctx context.Context, ownerID, id int64) error
}

type ReminderServiceImpl struct {
	store   Store
	sched   Scheduler
	extract Extractor
	clk     clock.Clock
	log     *zap.Logger
	metrics *metrics.Metrics
	policy  Policy
	minLead time.Duration
}

// Option configures the service.
type Option func(*ReminderServiceImpl)

// WithPolicy sets the delivery policy for edits and deletes.
func WithPolicy(p Policy) Option { return func(s *ReminderServiceImpl) { s.policy = p } }

// WithMetrics records submission outcomes.
func WithMetrics(m *metrics.Metrics) Option { return func(s *ReminderServiceImpl) { s.metrics = m } }

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option { return func(s *ReminderServiceImpl) { s.clk = c } }

// NewReminderService constructs the service.
func NewReminderService(store Store, sched Scheduler, ex Extractor, log *zap.Logger, opts ...Option) *ReminderServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	s := &ReminderServiceImpl{
		store:   store,
		sched:   sched,
		extract: ex,
		clk:     clock.New(),
		log:     log.Named("service"),
		policy:  PolicyStale,
		minLead: MinLead,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RegisterOwner records the owner; repeated calls are no-ops.
func (s *ReminderServiceImpl) RegisterOwner(ctx context.Context, ownerID int64, displayName string) {
	s.store.CreateOwnerIfAbsent(ctx, ownerID, displayName)
}

// Submit runs extraction, validation, scheduling and persistence in that order.
// Once the delivery is scheduled the submission succeeds even if the row could not be stored.
func (s *ReminderServiceImpl) Submit(ctx context.Context, ownerID int64, raw string) (sub model.Submission, err error) {
	sub.State = model.StateReceived
	defer func() { s.metrics.Submission(string(sub.State)) }()

	ex, err := s.extract.Extract(raw)
	if err != nil {
		sub.State = model.StateFailed
		if !errors.Is(err, errs.ErrExtraction) {
			err = fmt.Errorf("%w: %v", errs.ErrExtraction, err)
		}
		return sub, err
	}
	body := ex.Body()
	if len(ex.Dates) == 0 || body == "" {
		sub.State = model.StateFailed
		return sub, fmt.Errorf("%w: missing date or text", errs.ErrExtraction)
	}
	fireAt := ex.Dates[0].From
	sub.State = model.StateExtracted
	sub.Reminder = model.Reminder{OwnerID: ownerID, Text: body, FireAt: fireAt}

	if err := s.checkLead(fireAt); err != nil {
		sub.State = model.StateRejected
		return sub, err
	}
	sub.State = model.StateValidated

	id, reserved := s.store.NextReminderID(ctx)
	jobID, err := s.sched.ScheduleDelivery(ctx, delivery.Request{
		ReminderID: id,
		Target:     ownerID,
		Text:       body,
		FireAt:     fireAt,
	})
	if err != nil {
		sub.State = model.StateFailed
		s.log.Error("schedule delivery", zap.Int64("owner", ownerID), zap.Error(err))
		return sub, err
	}
	sub.State = model.StateScheduled
	sub.JobID = jobID

	if reserved {
		sub.Reminder.ID = id
		s.store.InsertReminderWithID(ctx, sub.Reminder)
	} else if newID, ok := s.store.InsertReminder(ctx, ownerID, body, fireAt); ok {
		// the delivery is not linked to this row, so reconciliation cannot restore it
		sub.Reminder.ID = newID
	}
	sub.State = model.StatePersisted
	s.log.Info("reminder submitted",
		zap.Int64("owner", ownerID),
		zap.Int64("reminder", sub.Reminder.ID),
		zap.String("job", jobID.String()),
		zap.Time("fire_at", fireAt),
	)
	return sub, nil
}

// ListForOwner returns the owner's reminders; empty when the store is unavailable.
func (s *ReminderServiceImpl) ListForOwner(ctx context.Context, ownerID int64) []model.Reminder {
	return s.store.ListReminders(ctx, ownerID)
}

// EditByPosition resolves the position once and edits that reminder.
func (s *ReminderServiceImpl) EditByPosition(ctx context.Context, ownerID int64, pos int, text string, fireAt time.Time) error {
	text = strings.TrimSpace(text)
	if err := s.checkEdit(text, fireAt); err != nil {
		return err
	}
	id, err := s.resolve(ctx, ownerID, pos)
	if err != nil {
		return err
	}
	return s.edit(ctx, ownerID, id, text, fireAt)
}

// DeleteByPosition resolves the position once and deletes that reminder.
func (s *ReminderServiceImpl) DeleteByPosition(ctx context.Context, ownerID int64, pos int) error {
	id, err := s.resolve(ctx, ownerID, pos)
	if err != nil {
		return err
	}
	return s.DeleteByID(ctx, ownerID, id)
}

// EditByID edits a reminder of the owner by id.
func (s *ReminderServiceImpl) EditByID(ctx context.Context, ownerID, id int64, text string, fireAt time.Time) error {
	text = strings.TrimSpace(text)
	if err := s.checkEdit(text, fireAt); err != nil {
		return err
	}
	return s.edit(ctx, ownerID, id, text, fireAt)
}

// DeleteByID deletes a reminder of the owner by id.
func (s *ReminderServiceImpl) DeleteByID(ctx context.Context, ownerID, id int64) error {
	if err := outcomeErr(s.store.DeleteReminder(ctx, ownerID, id)); err != nil {
		return err
	}
	if s.policy == PolicyReschedule {
		if _, err := s.sched.CancelForReminder(ctx, id); err != nil {
			s.log.Error("cancel delivery", zap.Int64("reminder", id), zap.Error(err))
		}
		return nil
	}
	s.detach(ctx, id)
	return nil
}

// Reconcile restores reminder rows for future deliveries whose row is missing,
// e.g. after a crash between scheduling and persisting. Returns the number restored.
func (s *ReminderServiceImpl) Reconcile(ctx context.Context) (int, error) {
	jobs, err := s.sched.PendingLinked(ctx, s.clk.Now())
	if err != nil {
		return 0, err
	}
	restored := 0
	for _, j := range jobs {
		if j.ReminderID == nil {
			continue
		}
		r := model.Reminder{ID: *j.ReminderID, OwnerID: j.Target, Text: j.Text, FireAt: j.FireAt}
		if s.store.RestoreReminder(ctx, r) {
			restored++
			s.log.Info("restored reminder", zap.Int64("reminder", r.ID), zap.Int64("owner", r.OwnerID))
		}
	}
	return restored, nil
}

func (s *ReminderServiceImpl) edit(ctx context.Context, ownerID, id int64, text string, fireAt time.Time) error {
	if err := outcomeErr(s.store.UpdateReminder(ctx, ownerID, id, text, fireAt)); err != nil {
		return err
	}
	if s.policy != PolicyReschedule {
		s.detach(ctx, id)
		return nil
	}
	if _, err := s.sched.CancelForReminder(ctx, id); err != nil {
		s.log.Error("cancel delivery", zap.Int64("reminder", id), zap.Error(err))
	}
	if _, err := s.sched.ScheduleDelivery(ctx, delivery.Request{ReminderID: id, Target: ownerID, Text: text, FireAt: fireAt}); err != nil {
		return fmt.Errorf("reminder updated, delivery not rescheduled: %w", err)
	}
	return nil
}

// detach keeps the original delivery firing but stops reconciliation from resurrecting the old row.
func (s *ReminderServiceImpl) detach(ctx context.Context, id int64) {
	if _, err := s.sched.DetachReminder(ctx, id); err != nil {
		s.log.Warn("detach delivery", zap.Int64("reminder", id), zap.Error(err))
	}
}

func (s *ReminderServiceImpl) resolve(ctx context.Context, ownerID int64, pos int) (int64, error) {
	list := s.store.ListReminders(ctx, ownerID)
	if pos < 1 || pos > len(list) {
		return 0, fmt.Errorf("%w: %d of %d", errs.ErrPositionOutOfRange, pos, len(list))
	}
	return list[pos-1].ID, nil
}

func (s *ReminderServiceImpl) checkLead(fireAt time.Time) error {
	if fireAt.Before(s.clk.Now().Add(s.minLead)) {
		return errs.ErrLeadTime
	}
	return nil
}

func (s *ReminderServiceImpl) checkEdit(text string, fireAt time.Time) error {
	if text == "" {
		return fmt.Errorf("%w: empty reminder text", errs.ErrValidation)
	}
	return s.checkLead(fireAt)
}

func outcomeErr(o model.Outcome) error {
	switch o {
	case model.OutcomeDeleted, model.OutcomeUpdated:
		return nil
	case model.OutcomeNotFound:
		return errs.ErrNotFound
	default:
		return errs.ErrStorage
	}
}
