package postgres

import (
	"context"
	"fmt"

	"github.com/and161185/remind-keeper/internal/errs"
)

// OwnerRepo implements OwnerRepository using PostgreSQL.
type OwnerRepo struct{ db *DB }

// NewOwnerRepo constructs an owner repository.
func NewOwnerRepo(db *DB) *OwnerRepo { return &OwnerRepo{db: db} }

// CreateIfAbsent inserts the owner; a conflict on identity or display name is a no-op.
func (r *OwnerRepo) CreateIfAbsent(ctx context.Context, identity int64, displayName string) (bool, error) {
	const q = `
INSERT INTO owners (identity, display_name)
VALUES ($1, NULLIF($2, ''))
ON CONFLICT DO NOTHING`
	tag, err := r.db.Pool.Exec(ctx, q, identity, displayName)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetDisplayName updates the display name when it differs from the stored one.
func (r *OwnerRepo) SetDisplayName(ctx context.Context, identity int64, displayName string) error {
	const q = `
UPDATE owners
SET display_name = NULLIF($2, '')
WHERE identity = $1 AND display_name IS DISTINCT FROM NULLIF($2, '')`
	_, err := r.db.Pool.Exec(ctx, q, identity, displayName)
	if isUniqueViolation(err) {
		return fmt.Errorf("display name %q taken: %w", displayName, errs.ErrValidation)
	}
	return err
}
