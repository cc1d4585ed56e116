package auth

import (
	"context"
	"errors"
	"log/slog"

	"payrollhub.org/internal/fault"
	"payrollhub.org/internal/obs"
)

// AccessGuard authenticates an opaque token and checks capabilities. Any
// storage failure is returned as an internal fault; the guard never yields
// an AuthContext it could not fully verify.
type AccessGuard struct {
	sessions SessionReader
	resolver Resolver
	logger   *slog.Logger
}

func NewAccessGuard(sessions SessionReader, resolver Resolver, logger *slog.Logger) *AccessGuard {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessGuard{sessions: sessions, resolver: resolver, logger: logger}
}

// Authorize resolves token and, when required is non-empty, demands every
// listed capability.
func (g *AccessGuard) Authorize(ctx context.Context, token string, required ...Capability) (AuthContext, error) {
	if token == "" {
		return g.deny(ctx, "unauthenticated", fault.Unauthenticated("missing session token", nil))
	}
	sess, err := g.sessions.Get(ctx, token)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return g.deny(ctx, "unauthenticated", fault.Unauthenticated("session not found", err))
	case err != nil:
		return g.deny(ctx, "error", fault.As(err))
	}

	perms, err := g.resolver.Resolve(ctx, sess.UserID)
	switch {
	case errors.Is(err, ErrUserNotFound):
		return g.deny(ctx, "unauthenticated", fault.Unauthenticated("session user no longer exists", err), "user_id", sess.UserID)
	case errors.Is(err, ErrUserInactive), errors.Is(err, ErrRoleNotFound):
		return g.deny(ctx, "forbidden", fault.Forbidden("permission resolution failed", err), "user_id", sess.UserID)
	case err != nil:
		return g.deny(ctx, "error", fault.Internal("resolve permissions", err), "user_id", sess.UserID)
	}

	for _, c := range required {
		if !perms.Has(c) {
			return g.deny(ctx, "forbidden",
				fault.Forbidden("missing capability "+string(c), ErrMissingCapability),
				"user_id", sess.UserID, "capability", string(c))
		}
	}

	obs.AuthDecisions.WithLabelValues("allowed").Inc()
	return AuthContext{
		UserID:      sess.UserID,
		Username:    sess.Username,
		BranchID:    perms.BranchID(),
		Permissions: perms,
	}, nil
}

func (g *AccessGuard) deny(ctx context.Context, outcome string, err *fault.Error, attrs ...any) (AuthContext, error) {
	obs.AuthDecisions.WithLabelValues(outcome).Inc()
	level := slog.LevelInfo
	if outcome == "error" {
		level = slog.LevelError
	}
	g.logger.Log(ctx, level, "access_denied", append([]any{"outcome", outcome, "error", err.Error()}, attrs...)...)
	return AuthContext{}, err
}

// ValidateBranchAccess allows the all-branches capability through; otherwise
// the requested branch must equal the context's branch exactly. A context
// without a branch can access nothing branch-scoped.
func ValidateBranchAccess(actx AuthContext, requestedBranchID string) error {
	if actx.Permissions.CanViewAllBranches() {
		return nil
	}
	if actx.BranchID == "" {
		return fault.Forbidden("no branch assigned", ErrBranchDenied)
	}
	if actx.BranchID != requestedBranchID {
		return fault.Forbidden("branch "+requestedBranchID+" not accessible", ErrBranchDenied)
	}
	return nil
}
