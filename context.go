package goGuard

import "context"

type userIDContextKey struct{}

// WithUserID attaches the authenticated user's ID to ctx. The PHI access
// middleware reads it back as the current user.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey{}, userID)
}

// UserIDFromContext returns the user ID attached by WithUserID, or "".
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(userIDContextKey{}).(string)
	return v
}
