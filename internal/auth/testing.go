package auth

import "context"

// SetUserIDForTest seeds the context with an authenticated user ID so
// handler tests can skip the token round-trip.
func SetUserIDForTest(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}
