package shared

import "context"

// Identity describes the authenticated principal attached to a request.
// It is decoded from the access token, never loaded from storage.
type Identity struct {
	PrincipalID string
	Name        string
	Email       string
	Roles       []string
}

// HasRole reports whether the identity carries the given role claim.
func (id *Identity) HasRole(role string) bool {
	if id == nil {
		return false
	}
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}
