package statsapi

import (
	"context"
	"strings"
)

type sessionTokenKey struct{}

// WithSessionToken returns a context whose backend requests carry token as the session
// cookie. An empty token leaves ctx anonymous.
func WithSessionToken(ctx context.Context, token string) context.Context {
	token = strings.TrimSpace(token)
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionTokenKey{}, token)
}

// SessionToken returns the backend session carried by ctx, if any.
func SessionToken(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	token, _ := ctx.Value(sessionTokenKey{}).(string)
	return token
}
