// Package correlation carries the request correlation id through contexts so
// outbound calls can forward it.
package correlation

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{}

// WithID returns a context carrying id
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the correlation id, or "" when none is set
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// NewID generates a correlation id
func NewID() string {
	return uuid.New().String()
}
