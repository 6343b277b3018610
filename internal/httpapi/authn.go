package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"allot.org/internal/alloc"
	"allot.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withAuth resolves the bearer token into an identity and scopes the request
// to its tenant.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if a.signer == nil {
			writeErrorCode(w, r, http.StatusUnauthorized, "unauthorized", "authentication is not configured")
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="allot"`)
			writeErrorCode(w, r, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}

		id, err := a.signer.Identity(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="allot", error="invalid_token"`)
			switch {
			case errors.Is(err, auth.ErrMissingTenant):
				writeErrorCode(w, r, http.StatusUnauthorized, alloc.CodeMissingTenant, "token carries no tenant")
			default:
				writeErrorCode(w, r, http.StatusUnauthorized, "unauthorized", "invalid token")
			}
			return
		}

		setLoggedTenant(r.Context(), id.TenantID)
		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), id)))
	})
}

// requirePermission gates a route on a permission granted by the caller's roles.
func (a *API) requirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="allot"`)
				writeErrorCode(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			if !id.HasPermission(perm) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="allot", error="insufficient_scope"`)
				writeErrorCode(w, r, http.StatusForbidden, "forbidden", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole ensures the authenticated identity holds role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := auth.IdentityFromContext(r.Context()); !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="allot"`)
				writeErrorCode(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			if !auth.HasRole(r.Context(), role) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="allot", error="insufficient_scope"`)
				writeErrorCode(w, r, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
