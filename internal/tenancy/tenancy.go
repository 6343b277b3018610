// Package tenancy scopes every read and write to exactly one tenant.
//
// A tenant is an opaque partition key. Entities carry it as a column and every
// query must conjoin an exact match on it; callers cannot widen or drop that
// predicate through their own filters.
package tenancy

import (
	"context"
	"errors"
	"strings"
)

// ErrMissingTenant is returned when an operation is attempted without a tenant.
var ErrMissingTenant = errors.New("tenancy: missing tenant")

// Scope is the resolved (tenant, actor) pair handed over by the
// authentication collaborator.
type Scope struct {
	TenantID string
	ActorID  string
}

type scopeKey struct{}

// WithScope attaches the scope to ctx.
func WithScope(ctx context.Context, s Scope) context.Context {
	s.TenantID = strings.TrimSpace(s.TenantID)
	s.ActorID = strings.TrimSpace(s.ActorID)
	return context.WithValue(ctx, scopeKey{}, s)
}

// FromContext returns the scope previously attached with WithScope.
func FromContext(ctx context.Context) (Scope, bool) {
	if ctx == nil {
		return Scope{}, false
	}
	s, ok := ctx.Value(scopeKey{}).(Scope)
	if !ok || s.TenantID == "" {
		return Scope{}, false
	}
	return s, true
}

// ActorFromContext returns the actor id of the scope in ctx, if any.
func ActorFromContext(ctx context.Context) string {
	s, _ := FromContext(ctx)
	return s.ActorID
}

// Require rejects an empty tenant identifier.
func Require(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return ErrMissingTenant
	}
	return nil
}

// Owns reports whether an entity stored under entityTenant is visible to
// callerTenant. An empty tenant on either side never matches.
func Owns(callerTenant, entityTenant string) bool {
	return callerTenant != "" && callerTenant == entityTenant
}
