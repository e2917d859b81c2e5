// Package repository defines storage interfaces implemented by concrete backends.
package repository

import "context"

// OwnerRepository provides access to reminder owners.
type OwnerRepository interface {
	// CreateIfAbsent inserts the owner unless the identity or display name is already taken.
	CreateIfAbsent(ctx context.Context, identity int64, displayName string) (created bool, err error)
	// SetDisplayName refreshes the display name of an existing owner.
	SetDisplayName(ctx context.Context, identity int64, displayName string) error
}
