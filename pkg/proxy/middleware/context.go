package middleware

import "context"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// RequestIDKey stores the correlation ID for the request.
	RequestIDKey contextKey = "request_id"

	// PrincipalKey stores the authenticated principal name.
	PrincipalKey contextKey = "principal"
)

// WithPrincipal returns a context carrying the authenticated principal name.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns empty string if the request was not authenticated.
func GetPrincipal(ctx context.Context) string {
	if principal, ok := ctx.Value(PrincipalKey).(string); ok {
		return principal
	}
	return ""
}
