package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"payrollhub.org/internal/audit"
	"payrollhub.org/internal/auth"
)

const (
	authHeader    = "Authorization"
	bearer        = "Bearer "
	sessionCookie = "session"
)

// sessionToken reads the bearer token, falling back to the session cookie.
// Nothing else in the request influences who the caller is.
func sessionToken(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get(authHeader)); h != "" {
		if len(h) > len(bearer) && strings.EqualFold(h[:len(bearer)], bearer) {
			return strings.TrimSpace(h[len(bearer):])
		}
		return ""
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

func (a *API) requestContext(r *http.Request) context.Context {
	return audit.WithRequest(r.Context(), RequestIDFromContext(r.Context()), clientIP(r), r.UserAgent())
}

// guard runs the per-request pipeline: authorize the session against the
// required capabilities, then count the request against preset for the
// authorized user. Denied requests touch no counter. On failure the response
// is written and ok is false.
func (a *API) guard(w http.ResponseWriter, r *http.Request, preset string, required ...auth.Capability) (ctx context.Context, actx auth.AuthContext, ok bool) {
	ctx = a.requestContext(r)
	token := sessionToken(r)
	actx, err := a.Guard.Authorize(ctx, token, required...)
	if err != nil {
		a.writeFault(w, r, err)
		return nil, auth.AuthContext{}, false
	}
	if !a.limit(w, r.WithContext(ctx), preset, "user:"+actx.UserID) {
		return nil, auth.AuthContext{}, false
	}
	ctx = auth.ContextWithAuth(ctx, actx)
	ctx = auth.ContextWithToken(ctx, token)
	return ctx, actx, true
}

// limit counts one request for identity and writes the rate-limit headers.
func (a *API) limit(w http.ResponseWriter, r *http.Request, preset, identity string) bool {
	if a.Limiter == nil {
		return true
	}
	d, err := a.Limiter.Check(r.Context(), preset, identity)
	if d.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	}
	if err != nil {
		a.writeFault(w, r, err)
		return false
	}
	return true
}
