package auth

import "context"

// Identity is the caller-supplied {userId, role} pair attached to every
// mutating call. Patient/Doctor existence behind it is assumed, not
// verified.
type Identity struct {
	UserID string
	Role   string
}

type identityKey struct{}

// WithIdentity attaches the caller identity to the request context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext extracts the caller identity. The second return
// is false when no authenticated identity was attached.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
