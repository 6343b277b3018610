package auth

import (
	"context"
	"slices"
	"strings"

	"allot.org/internal/tenancy"
)

// Identity is the authenticated (actor, tenant, roles) triple.
type Identity struct {
	UserID   string
	TenantID string
	Roles    []string
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity and the derived tenant scope in ctx.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	id.UserID = strings.TrimSpace(id.UserID)
	id.TenantID = strings.TrimSpace(id.TenantID)
	id.Roles = dedupeRoles(id.Roles)
	ctx = context.WithValue(ctx, identityContextKey{}, id)
	return tenancy.WithScope(ctx, tenancy.Scope{TenantID: id.TenantID, ActorID: id.UserID})
}

// IdentityFromContext returns the identity attached by ContextWithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || id.UserID == "" {
		return Identity{}, false
	}
	return id, true
}

// HasRole checks whether the context identity holds the specified role.
func HasRole(ctx context.Context, role string) bool {
	role = strings.TrimSpace(strings.ToLower(role))
	id, ok := IdentityFromContext(ctx)
	return ok && role != "" && slices.Contains(id.Roles, role)
}
