// Package store is the reminder store boundary. Storage errors never cross it:
// each operation logs the failure and returns a safe default.
package store

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/remind-keeper/internal/errs"
	"github.com/and161185/remind-keeper/internal/model"
	"github.com/and161185/remind-keeper/internal/repository"
)

// Store wraps owner and reminder repositories.
type Store struct {
	owners    repository.OwnerRepository
	reminders repository.ReminderRepository
	log       *zap.Logger
}

// New constructs a Store.
func New(owners repository.OwnerRepository, reminders repository.ReminderRepository, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{owners: owners, reminders: reminders, log: log.Named("store")}
}

// CreateOwnerIfAbsent registers an owner. A changed display name is refreshed best-effort.
func (s *Store) CreateOwnerIfAbsent(ctx context.Context, identity int64, displayName string) {
	created, err := s.owners.CreateIfAbsent(ctx, identity, displayName)
	if err != nil {
		s.log.Error("create owner", zap.Int64("owner", identity), zap.Error(err))
		return
	}
	if created || displayName == "" {
		return
	}
	if err := s.owners.SetDisplayName(ctx, identity, displayName); err != nil {
		s.log.Warn("refresh display name", zap.Int64("owner", identity), zap.Error(err))
	}
}

// NextReminderID reserves an id for a reminder about to be scheduled.
func (s *Store) NextReminderID(ctx context.Context) (int64, bool) {
	id, err := s.reminders.NextID(ctx)
	if err != nil {
		s.log.Error("reserve reminder id", zap.Error(err))
		return 0, false
	}
	return id, true
}

// InsertReminder persists a reminder and reports whether it was stored.
func (s *Store) InsertReminder(ctx context.Context, ownerID int64, text string, fireAt time.Time) (int64, bool) {
	id, err := s.reminders.Create(ctx, ownerID, text, fireAt)
	if err != nil {
		s.log.Error("insert reminder", zap.Int64("owner", ownerID), zap.Error(err))
		return 0, false
	}
	return id, true
}

// InsertReminderWithID persists a reminder under a reserved id.
func (s *Store) InsertReminderWithID(ctx context.Context, r model.Reminder) bool {
	if _, err := s.reminders.CreateWithID(ctx, r); err != nil {
		s.log.Error("insert reminder",
			zap.Int64("owner", r.OwnerID),
			zap.Int64("reminder", r.ID),
			zap.Error(err),
		)
		return false
	}
	return true
}

// RestoreReminder re-creates a missing reminder row; an existing row is left alone.
func (s *Store) RestoreReminder(ctx context.Context, r model.Reminder) bool {
	inserted, err := s.reminders.CreateWithID(ctx, r)
	if err != nil {
		s.log.Error("restore reminder", zap.Int64("reminder", r.ID), zap.Error(err))
		return false
	}
	return inserted
}

// ListReminders returns the owner's reminders in insertion order, or an empty list on failure.
func (s *Store) ListReminders(ctx context.Context, ownerID int64) []model.Reminder {
	out, err := s.reminders.ListByOwner(ctx, ownerID)
	if err != nil {
		s.log.Error("list reminders", zap.Int64("owner", ownerID), zap.Error(err))
		return []model.Reminder{}
	}
	if out == nil {
		return []model.Reminder{}
	}
	return out
}

// DeleteReminder removes a reminder of the owner.
func (s *Store) DeleteReminder(ctx context.Context, ownerID, id int64) model.Outcome {
	err := s.reminders.Delete(ctx, ownerID, id)
	switch {
	case err == nil:
		return model.OutcomeDeleted
	case errors.Is(err, errs.ErrNotFound):
		return model.OutcomeNotFound
	default:
		s.log.Error("delete reminder", zap.Int64("owner", ownerID), zap.Int64("reminder", id), zap.Error(err))
		return model.OutcomeFailed
	}
}

// UpdateReminder replaces text and fire time of a reminder of the owner.
func (s *Store) UpdateReminder(ctx context.Context, ownerID, id int64, text string, fireAt time.Time) model.Outcome {
	err := s.reminders.Update(ctx, ownerID, id, text, fireAt)
	switch {
	case err == nil:
		return model.OutcomeUpdated
	case errors.Is(err, errs.ErrNotFound):
		return model.OutcomeNotFound
	default:
		s.log.Error("update reminder", zap.Int64("owner", ownerID), zap.Int64("reminder", id), zap.Error(err))
		return model.OutcomeFailed
	}
}

// SweepExpired deletes reminders of every owner whose fire time is before now.
// Returns the number of rows removed, 0 on failure.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) int64 {
	n, err := s.reminders.DeleteExpired(ctx, now)
	if err != nil {
		s.log.Error("sweep expired", zap.Time("now", now), zap.Error(err))
		return 0
	}
	return n
}

// Ping reports whether the backend answers.
func (s *Store) Ping(ctx context.Context) error { return s.reminders.Ping(ctx) }
