package auth

import (
	"context"

	domain "github.com/hoangphuc3604/my-shop-backend/internal/domain"
)

// Identity is the authenticated back-office user extracted from a bearer token.
type Identity struct {
	UID    string
	Email  string
	Role   domain.UserRole
	Claims map[string]any
}

// HasRole reports whether the identity holds any of roles.
func (i *Identity) HasRole(roles ...domain.UserRole) bool {
	if i == nil {
		return false
	}
	for _, role := range roles {
		if i.Role == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the identity holds the admin role.
func (i *Identity) IsAdmin() bool { return i.HasRole(domain.RoleAdmin) }

type identityContextKey struct{}

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
