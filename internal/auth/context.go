package auth

import "context"

type authContextKey struct{}
type tokenContextKey struct{}

// ContextWithAuth attaches the authorization result to the context.
func ContextWithAuth(ctx context.Context, actx AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, &actx)
}

// AuthFromContext extracts the authorization result from the context.
func AuthFromContext(ctx context.Context) (AuthContext, bool) {
	if ctx == nil {
		return AuthContext{}, false
	}
	v, ok := ctx.Value(authContextKey{}).(*AuthContext)
	if !ok || v == nil {
		return AuthContext{}, false
	}
	return *v, true
}

// UserIDFromContext returns the authorized user's id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	actx, ok := AuthFromContext(ctx)
	if !ok || actx.UserID == "" {
		return "", false
	}
	return actx.UserID, true
}

// ContextWithToken stores the raw session token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the session token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
