package httpx

import "context"

// DefaultUserHeader carries the authenticated user id set by the fronting proxy.
const DefaultUserHeader = "X-User-Id"

// userKey is an unexported context key type to avoid collisions across packages.
type userKey struct{}

// WithUserID returns a child context that carries userID. An empty id returns ctx unchanged.
func WithUserID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userKey{}, userID)
}

// UserIDFromContext returns the caller's user id and whether one was set.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userKey{}).(string)
	return userID, ok && userID != ""
}
