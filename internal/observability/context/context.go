package context

import (
	stdcontext "context"
	"strings"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	sessionIDKey ctxKey = "session_id"
	providerKey  ctxKey = "provider"
)

func WithRequestID(ctx stdcontext.Context, requestID string) stdcontext.Context {
	return stdcontext.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx stdcontext.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithSession tags the context with the checkout session being worked on.
func WithSession(ctx stdcontext.Context, sessionID string) stdcontext.Context {
	return stdcontext.WithValue(ctx, sessionIDKey, strings.TrimSpace(sessionID))
}

func SessionIDFromContext(ctx stdcontext.Context) string {
	return stringValue(ctx, sessionIDKey)
}

func WithProvider(ctx stdcontext.Context, provider string) stdcontext.Context {
	return stdcontext.WithValue(ctx, providerKey, strings.TrimSpace(provider))
}

func ProviderFromContext(ctx stdcontext.Context) string {
	return stringValue(ctx, providerKey)
}

func stringValue(ctx stdcontext.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
