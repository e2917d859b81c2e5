package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/remind-keeper/internal/model"
)

// JobRepository is the durable storage behind the delivery queue.
type JobRepository interface {
	// Enqueue stores a pending job. A job with the same dedupe key is kept and its id returned.
	Enqueue(ctx context.Context, j model.DeliveryJob) (id uuid.UUID, created bool, err error)
	// ClaimDue leases up to limit pending jobs whose run time has come, plus running jobs with an expired lease.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]model.DeliveryJob, error)
	// MarkDone completes a claimed job.
	MarkDone(ctx context.Context, id uuid.UUID) error
	// MarkRetry returns a claimed job to pending with a later run time.
	MarkRetry(ctx context.Context, id uuid.UUID, runAt time.Time, lastErr string) error
	// MarkFailed gives up on a claimed job.
	MarkFailed(ctx context.Context, id uuid.UUID, lastErr string) error
	// CancelForReminder cancels pending jobs linked to the reminder.
	CancelForReminder(ctx context.Context, reminderID int64) (int64, error)
	// DetachReminder clears the reminder link of pending jobs so they are not used for recovery.
	DetachReminder(ctx context.Context, reminderID int64) (int64, error)
	// PendingLinked returns pending jobs linked to a reminder whose fire time is after now.
	PendingLinked(ctx context.Context, now time.Time) ([]model.DeliveryJob, error)
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}
