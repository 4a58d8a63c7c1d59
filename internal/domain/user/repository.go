package user

import (
	"context"
)

// Repository defines the operations for persisting and retrieving users.
type Repository interface {
	// AddOrReplace upserts by Telegram ID, overwriting profile fields and role.
	AddOrReplace(ctx context.Context, u *User) error
	// UpsertProfile refreshes profile fields but keeps the stored role of an existing user.
	UpsertProfile(ctx context.Context, u *User) error
	GetByUserID(ctx context.Context, userID int64) (*User, error)
	// ListByUserIDs returns the known users among ids, in the order of ids.
	ListByUserIDs(ctx context.Context, ids []int64) ([]*User, error)
	// SetRole creates the user if needed and makes them active with the given role.
	SetRole(ctx context.Context, userID int64, role Role) error
	// SetCuratorActive toggles is_active of a curator. Returns ErrNotFound when no curator matches.
	SetCuratorActive(ctx context.Context, userID int64, active bool) error
	ListCurators(ctx context.Context) ([]*User, error) // active curators only
	ListAll(ctx context.Context) ([]*User, error)      // for backups
}
