package audit

import (
	"context"
	"strings"
)

type requestKey struct{}

type requestInfo struct {
	id        string
	clientIP  string
	userAgent string
}

// WithRequest attaches request attributes that Record copies into entries.
func WithRequest(ctx context.Context, requestID, clientIP, userAgent string) context.Context {
	return context.WithValue(ctx, requestKey{}, requestInfo{
		id:        strings.TrimSpace(requestID),
		clientIP:  strings.TrimSpace(clientIP),
		userAgent: userAgent,
	})
}

func requestFromContext(ctx context.Context) requestInfo {
	if ctx == nil {
		return requestInfo{}
	}
	v, _ := ctx.Value(requestKey{}).(requestInfo)
	return v
}

// RequestIDFromContext returns the request id attached with WithRequest.
func RequestIDFromContext(ctx context.Context) string {
	return requestFromContext(ctx).id
}
