package sqlite

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/and161185/remind-keeper/internal/errs"
	"github.com/and161185/remind-keeper/internal/model"
)

// ReminderRepo implements ReminderRepository with gorm.
type ReminderRepo struct{ db *gorm.DB }

// NewReminderRepo constructs a reminder repository.
func NewReminderRepo(db *gorm.DB) *ReminderRepo { return &ReminderRepo{db: db} }

// NextID bumps the reminders counter inside a transaction.
func (r *ReminderRepo) NextID(ctx context.Context) (int64, error) {
	var id int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq := seqRow{Name: "reminders", Value: 1}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]any{"value": gorm.Expr("value + 1")}),
		}).Create(&seq).Error; err != nil {
			return err
		}
		return tx.Model(&seqRow{}).Where("name = ?", "reminders").Pluck("value", &id).Error
	})
	return id, err
}

// Create inserts a reminder with a freshly reserved id.
func (r *ReminderRepo) Create(ctx context.Context, ownerID int64, text string, fireAt time.Time) (int64, error) {
	id, err := r.NextID(ctx)
	if err != nil {
		return 0, err
	}
	row := reminderRow{ID: id, Text: text, FireAt: utc(fireAt), OwnerIdentity: ownerID}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error; err != nil {
		return 0, err
	}
	return id, nil
}

// CreateWithID inserts a reminder under a reserved id, keeping an existing row.
func (r *ReminderRepo) CreateWithID(ctx context.Context, rem model.Reminder) (bool, error) {
	row := reminderRow{ID: rem.ID, Text: rem.Text, FireAt: utc(rem.FireAt), OwnerIdentity: rem.OwnerID}
	res := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListByOwner returns the owner's reminders ordered by id.
func (r *ReminderRepo) ListByOwner(ctx context.Context, ownerID int64) ([]model.Reminder, error) {
	var rows []reminderRow
	if err := r.db.WithContext(ctx).Where("owner_identity = ?", ownerID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Reminder, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.Reminder{ID: row.ID, OwnerID: row.OwnerIdentity, Text: row.Text, FireAt: row.FireAt})
	}
	return out, nil
}

// Delete removes one reminder of the owner.
func (r *ReminderRepo) Delete(ctx context.Context, ownerID, id int64) error {
	res := r.db.WithContext(ctx).Where("id = ? AND owner_identity = ?", id, ownerID).Delete(&reminderRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Update replaces text and fire time in one statement.
func (r *ReminderRepo) Update(ctx context.Context, ownerID, id int64, text string, fireAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&reminderRow{}).
		Where("id = ? AND owner_identity = ?", id, ownerID).
		Updates(map[string]any{"text": text, "fire_at": utc(fireAt)})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeleteExpired removes reminders whose fire time has passed.
func (r *ReminderRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("fire_at < ?", utc(now)).Delete(&reminderRow{})
	return res.RowsAffected, res.Error
}

// Ping checks the database connection.
func (r *ReminderRepo) Ping(ctx context.Context) error { return Ping(ctx, r.db) }
