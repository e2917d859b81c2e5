package repository

import (
	"context"
	"time"

	"github.com/and161185/remind-keeper/internal/model"
)

// ReminderRepository provides owner-scoped access to stored reminders.
type ReminderRepository interface {
	// NextID reserves a reminder id ahead of insertion.
	NextID(ctx context.Context) (int64, error)
	// Create inserts a reminder with a store-assigned id.
	Create(ctx context.Context, ownerID int64, text string, fireAt time.Time) (int64, error)
	// CreateWithID inserts a reminder with a reserved id; an existing row with that id is kept.
	CreateWithID(ctx context.Context, r model.Reminder) (inserted bool, err error)
	// ListByOwner returns the owner's reminders in insertion order.
	ListByOwner(ctx context.Context, ownerID int64) ([]model.Reminder, error)
	// Delete removes a reminder of the owner. Returns errs.ErrNotFound when nothing matched.
	Delete(ctx context.Context, ownerID, id int64) error
	// Update replaces text and fire time together. Returns errs.ErrNotFound when nothing matched.
	Update(ctx context.Context, ownerID, id int64, text string, fireAt time.Time) error
	// DeleteExpired removes every reminder with fire time strictly before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}
