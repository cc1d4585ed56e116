package auth

import "context"

// Directory is the read side of the relational user and role data. Lookups
// return ErrNotFound when the row does not exist.
type Directory interface {
	User(ctx context.Context, id string) (User, error)
	UserByUsername(ctx context.Context, username string) (User, error)
	Role(ctx context.Context, id string) (Role, error)
}

// SessionReader resolves opaque tokens.
type SessionReader interface {
	Get(ctx context.Context, token string) (Session, error)
}

// Resolver produces the permission snapshot of a user.
type Resolver interface {
	Resolve(ctx context.Context, userID string) (PermissionSet, error)
}
