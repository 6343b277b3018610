package auth

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

const (
	PermCatalogWrite     = "catalog.write"
	PermAssignmentWrite  = "assignment.write"
	PermMaintenanceWrite = "maintenance.write"
)

var rolePermissions = map[string][]string{
	RoleAdmin: {PermCatalogWrite, PermAssignmentWrite, PermMaintenanceWrite},
	RoleStaff: {PermAssignmentWrite},
}

// HasPermission reports whether any of the identity's roles grants perm.
func (id Identity) HasPermission(perm string) bool {
	for _, role := range id.Roles {
		for _, p := range rolePermissions[role] {
			if p == perm {
				return true
			}
		}
	}
	return false
}
