package auth

import "errors"

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrSessionNotFound    = errors.New("auth: session not found")
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrUserInactive       = errors.New("auth: user inactive")
	ErrRoleNotFound       = errors.New("auth: role not found")
	ErrMissingCapability  = errors.New("auth: missing capability")
	ErrBranchDenied       = errors.New("auth: branch access denied")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidInput       = errors.New("auth: invalid input")
)
