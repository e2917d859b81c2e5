package postgres

import (
	"context"
	"time"

	"github.com/and161185/remind-keeper/internal/errs"
	"github.com/and161185/remind-keeper/internal/model"
)

// ReminderRepo implements ReminderRepository using PostgreSQL.
type ReminderRepo struct{ db *DB }

// NewReminderRepo constructs a reminder repository.
func NewReminderRepo(db *DB) *ReminderRepo { return &ReminderRepo{db: db} }

// NextID draws the next value of the reminders id sequence.
func (r *ReminderRepo) NextID(ctx context.Context) (int64, error) {
	const q = `SELECT nextval(pg_get_serial_sequence('reminders', 'id'))`
	var id int64
	if err := r.db.Pool.QueryRow(ctx, q).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// Create inserts a reminder and returns its id.
func (r *ReminderRepo) Create(ctx context.Context, ownerID int64, text string, fireAt time.Time) (int64, error) {
	const q = `
INSERT INTO reminders (text, fire_at, owner_identity)
VALUES ($1, $2, $3)
RETURNING id`
	var id int64
	if err := r.db.Pool.QueryRow(ctx, q, text, fireAt, ownerID).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// CreateWithID inserts a reminder under a reserved id.
func (r *ReminderRepo) CreateWithID(ctx context.Context, rem model.Reminder) (bool, error) {
	const q = `
INSERT INTO reminders (id, text, fire_at, owner_identity)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO NOTHING`
	tag, err := r.db.Pool.Exec(ctx, q, rem.ID, rem.Text, rem.FireAt, rem.OwnerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListByOwner returns the owner's reminders ordered by id.
func (r *ReminderRepo) ListByOwner(ctx context.Context, ownerID int64) ([]model.Reminder, error) {
	const q = `
SELECT id, owner_identity, text, fire_at
FROM reminders
WHERE owner_identity=$1
ORDER BY id ASC`
	rows, err := r.db.Pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Reminder{}
	for rows.Next() {
		var rem model.Reminder
		if err = rows.Scan(&rem.ID, &rem.OwnerID, &rem.Text, &rem.FireAt); err != nil {
			return nil, err
		}
		out = append(out, rem)
	}
	return out, rows.Err()
}

// Delete removes one reminder of the owner.
func (r *ReminderRepo) Delete(ctx context.Context, ownerID, id int64) error {
	const q = `DELETE FROM reminders WHERE id=$1 AND owner_identity=$2`
	tag, err := r.db.Pool.Exec(ctx, q, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Update replaces text and fire time in a single statement.
func (r *ReminderRepo) Update(ctx context.Context, ownerID, id int64, text string, fireAt time.Time) error {
	const q = `UPDATE reminders SET text=$3, fire_at=$4 WHERE id=$1 AND owner_identity=$2`
	tag, err := r.db.Pool.Exec(ctx, q, id, ownerID, text, fireAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeleteExpired removes reminders of all owners whose fire time has passed.
func (r *ReminderRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const q = `DELETE FROM reminders WHERE fire_at < $1`
	tag, err := r.db.Pool.Exec(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Ping checks the database is reachable.
func (r *ReminderRepo) Ping(ctx context.Context) error { return r.db.Ping(ctx) }
