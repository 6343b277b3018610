package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"allot.org/internal/auth"
)

func withIdentity(r *http.Request, roles ...string) *http.Request {
	return r.WithContext(auth.ContextWithIdentity(r.Context(), auth.Identity{
		UserID:   "user-1",
		TenantID: "tenant-a",
		Roles:    roles,
	}))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireRoleAllowsMatchingRole(t *testing.T) {
	handler := RequireRole(auth.RoleAdmin)(okHandler())

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/internal", nil), auth.RoleAdmin)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRequireRoleRejectsMissingRole(t *testing.T) {
	handler := RequireRole(auth.RoleAdmin)(okHandler())

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/internal", nil), auth.RoleStaff)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if got := rr.Header().Get("WWW-Authenticate"); got == "" {
		t.Fatalf("expected WWW-Authenticate header set")
	}
}

func TestRequireRoleRejectsMissingUser(t *testing.T) {
	handler := RequireRole(auth.RoleAdmin)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/internal", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if got := rr.Header().Get("WWW-Authenticate"); got == "" {
		t.Fatalf("expected WWW-Authenticate header set")
	}
}

func TestRequirePermissionByRole(t *testing.T) {
	a := &API{}
	cases := []struct {
		role string
		perm string
		want int
	}{
		{auth.RoleAdmin, auth.PermCatalogWrite, http.StatusOK},
		{auth.RoleStaff, auth.PermAssignmentWrite, http.StatusOK},
		{auth.RoleStaff, auth.PermCatalogWrite, http.StatusForbidden},
		{auth.RoleStaff, auth.PermMaintenanceWrite, http.StatusForbidden},
		{"viewer", auth.PermAssignmentWrite, http.StatusForbidden},
	}
	for _, tc := range cases {
		handler := a.requirePermission(tc.perm)(okHandler())
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodPost, "/x", nil), tc.role))
		if rr.Code != tc.want {
			t.Fatalf("%s/%s: expected %d, got %d", tc.role, tc.perm, tc.want, rr.Code)
		}
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := map[string]bool{
		"":              false,
		"Basic abc":     false,
		"Bearer ":       false,
		"Bearer abc":    true,
		"bearer abc":    true,
		"  Bearer abc ": true,
	}
	for header, ok := range cases {
		token, err := extractBearerToken(header)
		if ok && (err != nil || token != "abc") {
			t.Fatalf("%q: expected token abc, got %q (%v)", header, token, err)
		}
		if !ok && err == nil {
			t.Fatalf("%q: expected error", header)
		}
	}
}
