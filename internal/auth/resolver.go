package auth

import (
	"context"
	"errors"
	"fmt"
)

// PermissionResolver turns a user id into a PermissionSet using the
// directory's current user and role rows.
type PermissionResolver struct {
	dir Directory
}

func NewPermissionResolver(dir Directory) *PermissionResolver {
	return &PermissionResolver{dir: dir}
}

// Resolve fails with ErrUserNotFound, ErrUserInactive or ErrRoleNotFound;
// any other error is a storage failure.
func (r *PermissionResolver) Resolve(ctx context.Context, userID string) (PermissionSet, error) {
	user, err := r.dir.User(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return PermissionSet{}, ErrUserNotFound
	}
	if err != nil {
		return PermissionSet{}, fmt.Errorf("load user %s: %w", userID, err)
	}
	if !user.Active {
		return PermissionSet{}, ErrUserInactive
	}
	if user.RoleID == "" {
		return PermissionSet{}, ErrRoleNotFound
	}
	role, err := r.dir.Role(ctx, user.RoleID)
	if errors.Is(err, ErrNotFound) {
		return PermissionSet{}, ErrRoleNotFound
	}
	if err != nil {
		return PermissionSet{}, fmt.Errorf("load role %s: %w", user.RoleID, err)
	}
	return NewPermissionSet(role, user.BranchID), nil
}
