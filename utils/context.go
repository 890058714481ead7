package utils

import (
	"context"
	"time"
)

const (
	// DefaultTimeout bounds startup checks and graceful shutdown
	DefaultTimeout = 10 * time.Second

	// ShortTimeout is for quick operations (rate limit lookups, etc.)
	ShortTimeout = 2 * time.Second
)

type requestIDKey struct{}

// WithTimeout creates a context with default timeout
func WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultTimeout)
}

// WithShortTimeout creates a context with short timeout for quick operations
func WithShortTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ShortTimeout)
}

// WithRequestID stores the request ID so code below the HTTP layer can log it
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID or "" when none was set
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
