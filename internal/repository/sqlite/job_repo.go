package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/and161185/remind-keeper/internal/errs"
	"github.com/and161185/remind-keeper/internal/model"
)

// JobRepo implements JobRepository with gorm. SQLite serialises writers,
// so claiming inside a transaction is enough to keep claims exclusive.
type JobRepo struct{ db *gorm.DB }

// NewJobRepo constructs a delivery job repository.
func NewJobRepo(db *gorm.DB) *JobRepo { return &JobRepo{db: db} }

// Enqueue stores a pending job unless its dedupe key is already taken.
// A canceled job with the same key is revived and reported as created.
func (r *JobRepo) Enqueue(ctx context.Context, j model.DeliveryJob) (uuid.UUID, bool, error) {
	if j.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return uuid.Nil, false, err
		}
		j.ID = id
	}
	if j.RunAt.IsZero() {
		j.RunAt = j.FireAt
	}
	row := jobRow{
		ID:             j.ID.String(),
		ReminderID:     j.ReminderID,
		DedupeKey:      j.DedupeKey,
		TargetIdentity: j.Target,
		MessageText:    j.Text,
		FireAt:         utc(j.FireAt),
		RunAt:          utc(j.RunAt),
		State:          string(model.JobPending),
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedupe_key"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return uuid.Nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return j.ID, true, nil
	}

	var existing jobRow
	if err := r.db.WithContext(ctx).Where("dedupe_key = ?", j.DedupeKey).Take(&existing).Error; err != nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.FromString(existing.ID)
	if err != nil || existing.State != string(model.JobCanceled) {
		return id, false, err
	}

	// a canceled job holding the key is put back in the queue
	res = r.db.WithContext(ctx).Model(&jobRow{}).
		Where("id = ? AND state = ?", existing.ID, string(model.JobCanceled)).
		Updates(map[string]any{
			"state":        string(model.JobPending),
			"reminder_id":  j.ReminderID,
			"run_at":       utc(j.RunAt),
			"attempts":     0,
			"last_error":   "",
			"locked_until": nil,
		})
	if res.Error != nil {
		return uuid.Nil, false, res.Error
	}
	return id, res.RowsAffected == 1, nil
}

// ClaimDue leases due jobs and expired leases.
func (r *JobRepo) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]model.DeliveryJob, error) {
	now = utc(now)
	until := now.Add(lease)
	var claimed []model.DeliveryJob

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []jobRow
		if err := tx.
			Where("(state = ? AND run_at <= ?) OR (state = ? AND locked_until < ?)",
				string(model.JobPending), now, string(model.JobRunning), now).
			Order("run_at ASC").
			Limit(limit).
			Find(&rows).Error; err != nil {
			return err
		}
		for _, row := range rows {
			res := tx.Model(&jobRow{}).
				Where("id = ? AND state = ?", row.ID, row.State).
				Updates(map[string]any{
					"state":        string(model.JobRunning),
					"attempts":     gorm.Expr("attempts + 1"),
					"locked_until": until,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}
			row.State = string(model.JobRunning)
			row.Attempts++
			j, err := toJob(row)
			if err != nil {
				return err
			}
			claimed = append(claimed, j)
		}
		return nil
	})
	return claimed, err
}

// MarkDone completes a job.
func (r *JobRepo) MarkDone(ctx context.Context, id uuid.UUID) error {
	return r.updateOne(ctx, id, map[string]any{"state": string(model.JobDone), "locked_until": nil})
}

// MarkRetry puts a job back to pending with a later run time.
func (r *JobRepo) MarkRetry(ctx context.Context, id uuid.UUID, runAt time.Time, lastErr string) error {
	return r.updateOne(ctx, id, map[string]any{
		"state":        string(model.JobPending),
		"run_at":       utc(runAt),
		"last_error":   lastErr,
		"locked_until": nil,
	})
}

// MarkFailed parks a job.
func (r *JobRepo) MarkFailed(ctx context.Context, id uuid.UUID, lastErr string) error {
	return r.updateOne(ctx, id, map[string]any{
		"state":        string(model.JobFailed),
		"last_error":   lastErr,
		"locked_until": nil,
	})
}

// CancelForReminder cancels pending jobs of a reminder.
func (r *JobRepo) CancelForReminder(ctx context.Context, reminderID int64) (int64, error) {
	res := r.db.WithContext(ctx).Model(&jobRow{}).
		Where("reminder_id = ? AND state = ?", reminderID, string(model.JobPending)).
		Update("state", string(model.JobCanceled))
	return res.RowsAffected, res.Error
}

// DetachReminder clears the reminder link of pending jobs.
func (r *JobRepo) DetachReminder(ctx context.Context, reminderID int64) (int64, error) {
	res := r.db.WithContext(ctx).Model(&jobRow{}).
		Where("reminder_id = ? AND state = ?", reminderID, string(model.JobPending)).
		Update("reminder_id", nil)
	return res.RowsAffected, res.Error
}

// PendingLinked lists pending jobs still linked to a reminder that fire after now.
func (r *JobRepo) PendingLinked(ctx context.Context, now time.Time) ([]model.DeliveryJob, error) {
	var rows []jobRow
	if err := r.db.WithContext(ctx).
		Where("state = ? AND reminder_id IS NOT NULL AND fire_at > ?", string(model.JobPending), utc(now)).
		Order("reminder_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.DeliveryJob, 0, len(rows))
	for _, row := range rows {
		j, err := toJob(row)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// Ping checks the database connection.
func (r *JobRepo) Ping(ctx context.Context) error { return Ping(ctx, r.db) }

func (r *JobRepo) updateOne(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&jobRow{}).Where("id = ?", id.String()).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func toJob(row jobRow) (model.DeliveryJob, error) {
	id, err := uuid.FromString(row.ID)
	if err != nil {
		return model.DeliveryJob{}, errors.Join(errs.ErrStorage, err)
	}
	return model.DeliveryJob{
		ID:         id,
		ReminderID: row.ReminderID,
		DedupeKey:  row.DedupeKey,
		Target:     row.TargetIdentity,
		Text:       row.MessageText,
		FireAt:     row.FireAt,
		RunAt:      row.RunAt,
		State:      model.JobState(row.State),
		Attempts:   row.Attempts,
		LastError:  row.LastError,
	}, nil
}
