package auth

import "time"

// User is an application account. BranchID is empty when the user is not
// attached to a branch.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	RoleID       string
	BranchID     string
	Active       bool
	CreatedAt    time.Time
}

// Role carries the capability flags granted to its users.
type Role struct {
	ID           string
	Name         string
	Capabilities map[Capability]bool
}

// Session is the server-side record behind an opaque token.
type Session struct {
	Token     string
	UserID    string
	Username  string
	BranchID  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// AuthContext is the result of a successful authorization.
type AuthContext struct {
	UserID      string
	Username    string
	BranchID    string
	Permissions PermissionSet
}

// Can reports whether the authorized user holds c.
func (a AuthContext) Can(c Capability) bool {
	return a.Permissions.Has(c)
}
