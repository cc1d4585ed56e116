package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"payrollhub.org/internal/fault"
)

// Authenticator exchanges credentials for a session.
type Authenticator struct {
	dir      Directory
	sessions *SessionStore
	ttl      time.Duration
	logger   *slog.Logger
}

func NewAuthenticator(dir Directory, sessions *SessionStore, ttl time.Duration, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{dir: dir, sessions: sessions, ttl: ttl, logger: logger}
}

// Login verifies the password and opens a session bound to the user's
// current branch. Unknown users, wrong passwords and inactive accounts all
// fail as unauthenticated with the same message.
func (a *Authenticator) Login(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, fault.Validation("username", "username and password are required")
	}

	user, err := a.dir.UserByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		burnPasswordCheck(password)
		return Session{}, fault.Unauthenticated("unknown username", ErrInvalidCredentials)
	}
	if err != nil {
		return Session{}, fault.Internal("lookup user", err)
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Session{}, fault.Unauthenticated("password mismatch", ErrInvalidCredentials)
	}
	if !user.Active {
		return Session{}, fault.Unauthenticated("inactive account", ErrUserInactive)
	}

	sess, err := a.sessions.Create(ctx, user.ID, user.Username, user.BranchID, a.ttl)
	if err != nil {
		return Session{}, err
	}
	a.logger.InfoContext(ctx, "session_created", "user_id", user.ID, "expires_at", sess.ExpiresAt)
	return sess, nil
}

// Logout invalidates token.
func (a *Authenticator) Logout(ctx context.Context, token string) error {
	return a.sessions.Delete(ctx, token)
}
