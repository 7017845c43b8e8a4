package identity

import "context"

type contextKey struct{}

// NewContext attaches the authenticated user to a request context.
func NewContext(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// FromContext returns the authenticated user, if the identity middleware
// ran for this request.
func FromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(contextKey{}).(User)
	return user, ok
}
