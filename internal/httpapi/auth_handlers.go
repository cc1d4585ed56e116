package httpapi

import (
	"net/http"
	"strings"
	"time"

	"payrollhub.org/internal/audit"
	"payrollhub.org/internal/auth"
	"payrollhub.org/internal/fault"
	"payrollhub.org/internal/ratelimit"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type meResponse struct {
	UserID       string            `json:"user_id"`
	Username     string            `json:"username"`
	BranchID     string            `json:"branch_id,omitempty"`
	Capabilities []auth.Capability `json:"capabilities"`
}

const anonymousActor = "anonymous"

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	r = r.WithContext(a.requestContext(r))
	if !a.limit(w, r, ratelimit.AuthLogin, "ip:"+clientIP(r)) {
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeFault(w, r, err)
		return
	}
	ctx := r.Context()
	sess, err := a.Auth.Login(ctx, req.Username, req.Password)
	if err != nil {
		if fault.KindOf(err) == fault.KindUnauthenticated {
			attempted := strings.ToLower(strings.TrimSpace(req.Username))
			if _, aerr := a.Audit.Record(ctx, audit.Event{
				ActorID:      anonymousActor,
				Action:       audit.ActionExecute,
				ResourceType: "session",
				ResourceID:   attempted,
				Metadata:     map[string]any{"outcome": "denied"},
			}); aerr != nil {
				a.logger.WarnContext(ctx, "login_audit_failed", "error", aerr)
			}
		}
		a.writeFault(w, r, err)
		return
	}

	if _, err := a.Audit.Record(ctx, audit.Event{
		ActorID:      sess.UserID,
		Action:       audit.ActionExecute,
		ResourceType: "session",
		ResourceID:   sess.UserID,
		Metadata:     map[string]any{"outcome": "allowed", "expires_at": sess.ExpiresAt.Format(time.RFC3339)},
	}); err != nil {
		_ = a.Auth.Logout(ctx, sess.Token)
		a.writeFault(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   int(time.Until(sess.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, loginResponse{Token: sess.Token, UserID: sess.UserID, ExpiresAt: sess.ExpiresAt})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	ctx, actx, ok := a.guard(w, r, ratelimit.Default)
	if !ok {
		return
	}
	// The entry is written first so a failed append leaves the session live.
	if _, err := a.Audit.Record(ctx, audit.Event{
		ActorID:      actx.UserID,
		Action:       audit.ActionDelete,
		ResourceType: "session",
		ResourceID:   actx.UserID,
	}); err != nil {
		a.writeFault(w, r, err)
		return
	}
	token, _ := auth.TokenFromContext(ctx)
	if err := a.Auth.Logout(ctx, token); err != nil {
		a.writeFault(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true, Secure: a.secureCookies})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	_, actx, ok := a.guard(w, r, ratelimit.Default)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		UserID:       actx.UserID,
		Username:     actx.Username,
		BranchID:     actx.BranchID,
		Capabilities: actx.Permissions.List(),
	})
}
