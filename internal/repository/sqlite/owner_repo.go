package sqlite

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OwnerRepo implements OwnerRepository with gorm.
type OwnerRepo struct{ db *gorm.DB }

// NewOwnerRepo constructs an owner repository.
func NewOwnerRepo(db *gorm.DB) *OwnerRepo { return &OwnerRepo{db: db} }

// CreateIfAbsent inserts the owner; any uniqueness conflict is a no-op.
func (r *OwnerRepo) CreateIfAbsent(ctx context.Context, identity int64, displayName string) (bool, error) {
	row := ownerRow{Identity: identity, DisplayName: nullable(displayName)}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetDisplayName updates the stored display name.
func (r *OwnerRepo) SetDisplayName(ctx context.Context, identity int64, displayName string) error {
	return r.db.WithContext(ctx).
		Model(&ownerRow{}).
		Where("identity = ?", identity).
		Update("display_name", nullable(displayName)).Error
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
