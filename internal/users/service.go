// Package users administers application accounts.
package users

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"payrollhub.org/internal/audit"
	"payrollhub.org/internal/auth"
	"payrollhub.org/internal/fault"
	"payrollhub.org/internal/ids"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{2,63}$`)

// Input is a request to create a user.
type Input struct {
	Username string
	Password string
	RoleID   string
	BranchID string
}

// Tx is the transactional surface of one Create call.
type Tx interface {
	audit.Appender
	Role(ctx context.Context, id string) (auth.Role, error)
	InsertUser(ctx context.Context, u *auth.User) error
}

// UnitOfWork runs fn atomically.
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Service creates users on behalf of an administrator.
type Service struct {
	uow    UnitOfWork
	audit  *audit.Log
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(uow UnitOfWork, auditLog *audit.Log, opts ...Option) *Service {
	s := &Service{uow: uow, audit: auditLog, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalize(in Input) (Input, error) {
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.RoleID = strings.TrimSpace(in.RoleID)
	in.BranchID = strings.TrimSpace(in.BranchID)
	if !usernamePattern.MatchString(in.Username) {
		return in, fault.Validation("username", "username must be 3-64 characters of a-z, 0-9, '.', '_' or '-'")
	}
	if in.RoleID == "" {
		return in, fault.Validation("role_id", "role is required")
	}
	return in, nil
}

// Create adds an active user. Administrators without the all-branches
// capability may only create users in their own branch, and nobody may
// assign a role that grants a capability they do not hold themselves.
func (s *Service) Create(ctx context.Context, actx auth.AuthContext, in Input) (auth.User, error) {
	if !actx.Can(auth.CanManageUsers) {
		return auth.User{}, fault.Forbidden("create user requires "+string(auth.CanManageUsers), auth.ErrMissingCapability)
	}
	in, err := normalize(in)
	if err != nil {
		return auth.User{}, err
	}
	if !actx.Permissions.CanViewAllBranches() {
		if in.BranchID == "" {
			in.BranchID = actx.BranchID
		}
		if err := auth.ValidateBranchAccess(actx, in.BranchID); err != nil {
			return auth.User{}, err
		}
	}
	hash, err := auth.HashPassword(in.Password)
	if errors.Is(err, auth.ErrInvalidInput) {
		return auth.User{}, fault.Validation("password", strings.TrimPrefix(err.Error(), auth.ErrInvalidInput.Error()+": "))
	}
	if err != nil {
		return auth.User{}, fault.Internal("hash password", err)
	}

	user := auth.User{
		ID:           ids.NewAt(s.now()),
		Username:     in.Username,
		PasswordHash: hash,
		RoleID:       in.RoleID,
		BranchID:     in.BranchID,
		Active:       true,
	}
	err = s.uow.InTx(ctx, func(tx Tx) error {
		role, err := tx.Role(ctx, in.RoleID)
		if errors.Is(err, auth.ErrNotFound) {
			return fault.Validation("role_id", "unknown role "+in.RoleID)
		}
		if err != nil {
			return err
		}
		for c, granted := range role.Capabilities {
			if granted && !actx.Can(c) {
				return fault.Forbidden("role "+role.ID+" grants "+string(c), auth.ErrMissingCapability)
			}
		}
		if err := tx.InsertUser(ctx, &user); err != nil {
			return err
		}
		_, err = s.audit.RecordWith(ctx, tx, audit.Event{
			ActorID:      actx.UserID,
			Action:       audit.ActionCreate,
			ResourceType: "users",
			ResourceID:   user.ID,
			Metadata: map[string]any{
				"username":  user.Username,
				"role_id":   user.RoleID,
				"branch_id": user.BranchID,
			},
		})
		return err
	})
	if err != nil {
		if fault.KindOf(err) != fault.KindInternal {
			return auth.User{}, err
		}
		return auth.User{}, fault.Internal("create user", err)
	}

	s.logger.InfoContext(ctx, "user_created", "user_id", user.ID, "role_id", user.RoleID, "actor_id", actx.UserID)
	user.PasswordHash = ""
	return user, nil
}
