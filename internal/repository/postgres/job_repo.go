package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/remind-keeper/internal/errs"
	"github.com/and161185/remind-keeper/internal/model"
)

// JobRepo implements JobRepository on a PostgreSQL table used as a job queue.
type JobRepo struct{ db *DB }

// NewJobRepo constructs a delivery job repository.
func NewJobRepo(db *DB) *JobRepo { return &JobRepo{db: db} }

const jobColumns = `id, reminder_id, dedupe_key, target_identity, message_text, fire_at, run_at, state, attempts, last_error`

// Enqueue inserts a pending job or returns the id of the job already holding the dedupe key.
// A canceled job with the same key is revived and reported as created.
func (r *JobRepo) Enqueue(ctx context.Context, j model.DeliveryJob) (id uuid.UUID, created bool, err error) {
	if j.ID == uuid.Nil {
		if j.ID, err = uuid.NewV4(); err != nil {
			return uuid.Nil, false, err
		}
	}
	if j.RunAt.IsZero() {
		j.RunAt = j.FireAt
	}

	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return uuid.Nil, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const ins = `
INSERT INTO delivery_jobs (id, reminder_id, dedupe_key, target_identity, message_text, fire_at, run_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (dedupe_key) DO NOTHING
RETURNING id`
	const revive = `
UPDATE delivery_jobs
SET state='pending', reminder_id=$2, run_at=$3, attempts=0, last_error='', locked_until=NULL, updated_at=now()
WHERE dedupe_key=$1 AND state='canceled'
RETURNING id`
	const sel = `SELECT id FROM delivery_jobs WHERE dedupe_key=$1`

	scanErr := tx.QueryRow(ctx, ins, j.ID, j.ReminderID, j.DedupeKey, j.Target, j.Text, j.FireAt, j.RunAt).Scan(&id)
	switch {
	case scanErr == nil:
		return id, true, nil
	case errors.Is(scanErr, pgx.ErrNoRows):
	default:
		return uuid.Nil, false, scanErr
	}

	// a canceled job holding the key is put back in the queue
	scanErr = tx.QueryRow(ctx, revive, j.DedupeKey, j.ReminderID, j.RunAt).Scan(&id)
	switch {
	case scanErr == nil:
		return id, true, nil
	case errors.Is(scanErr, pgx.ErrNoRows):
	default:
		return uuid.Nil, false, scanErr
	}
	if err = tx.QueryRow(ctx, sel, j.DedupeKey).Scan(&id); err != nil {
		return uuid.Nil, false, err
	}
	return id, false, nil
}

// ClaimDue leases due jobs with SKIP LOCKED so concurrent workers never claim the same row.
// Running jobs whose lease expired are claimed again.
func (r *JobRepo) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]model.DeliveryJob, error) {
	const q = `
UPDATE delivery_jobs
SET state='running', attempts=attempts+1, locked_until=$2, updated_at=now()
WHERE id IN (
    SELECT id FROM delivery_jobs
    WHERE (state='pending' AND run_at <= $1)
       OR (state='running' AND locked_until < $1)
    ORDER BY run_at ASC
    LIMIT $3
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + jobColumns
	rows, err := r.db.Pool.Query(ctx, q, now, now.Add(lease), limit)
	if err != nil {
		return nil, err
	}
	return scanJobs(rows)
}

// MarkDone completes a job.
func (r *JobRepo) MarkDone(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE delivery_jobs SET state='done', locked_until=NULL, updated_at=now() WHERE id=$1`
	return r.execOne(ctx, q, id)
}

// MarkRetry reschedules a job for another attempt.
func (r *JobRepo) MarkRetry(ctx context.Context, id uuid.UUID, runAt time.Time, lastErr string) error {
	const q = `
UPDATE delivery_jobs
SET state='pending', run_at=$2, last_error=$3, locked_until=NULL, updated_at=now()
WHERE id=$1`
	return r.execOne(ctx, q, id, runAt, lastErr)
}

// MarkFailed parks a job that ran out of attempts.
func (r *JobRepo) MarkFailed(ctx context.Context, id uuid.UUID, lastErr string) error {
	const q = `UPDATE delivery_jobs SET state='failed', last_error=$2, locked_until=NULL, updated_at=now() WHERE id=$1`
	return r.execOne(ctx, q, id, lastErr)
}

// CancelForReminder cancels pending jobs of a reminder.
func (r *JobRepo) CancelForReminder(ctx context.Context, reminderID int64) (int64, error) {
	const q = `UPDATE delivery_jobs SET state='canceled', updated_at=now() WHERE reminder_id=$1 AND state='pending'`
	tag, err := r.db.Pool.Exec(ctx, q, reminderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DetachReminder drops the reminder link of pending jobs; the jobs still fire.
func (r *JobRepo) DetachReminder(ctx context.Context, reminderID int64) (int64, error) {
	const q = `UPDATE delivery_jobs SET reminder_id=NULL, updated_at=now() WHERE reminder_id=$1 AND state='pending'`
	tag, err := r.db.Pool.Exec(ctx, q, reminderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PendingLinked lists pending jobs that still point at a reminder and fire after now.
func (r *JobRepo) PendingLinked(ctx context.Context, now time.Time) ([]model.DeliveryJob, error) {
	const q = `
SELECT ` + jobColumns + `
FROM delivery_jobs
WHERE state='pending' AND reminder_id IS NOT NULL AND fire_at > $1
ORDER BY reminder_id ASC`
	rows, err := r.db.Pool.Query(ctx, q, now)
	if err != nil {
		return nil, err
	}
	return scanJobs(rows)
}

// Ping checks the database is reachable.
func (r *JobRepo) Ping(ctx context.Context) error { return r.db.Ping(ctx) }

func (r *JobRepo) execOne(ctx context.Context, q string, args ...any) error {
	tag, err := r.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanJobs(rows pgx.Rows) ([]model.DeliveryJob, error) {
	defer rows.Close()

	var out []model.DeliveryJob
	for rows.Next() {
		var (
			j     model.DeliveryJob
			rid   *int64
			state string
		)
		if err := rows.Scan(&j.ID, &rid, &j.DedupeKey, &j.Target, &j.Text, &j.FireAt, &j.RunAt, &state, &j.Attempts, &j.LastError); err != nil {
			return nil, err
		}
		j.ReminderID = rid
		j.State = model.JobState(state)
		out = append(out, j)
	}
	return out, rows.Err()
}
