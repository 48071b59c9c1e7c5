package perms

// HasPermission reports whether the named role grants the required
// permission. Missing role names, nil tables, and unknown roles all
// evaluate to false; callers can treat every outcome as a plain yes/no.
func HasPermission(roleName string, table RoleTable, required Permission) bool {
	if roleName == "" || table == nil {
		return false
	}
	role, ok := table[roleName]
	if !ok {
		return false
	}
	for _, p := range role.Permissions {
		if p == required {
			return true
		}
	}
	return false
}

// PermissionsForRole returns a copy of the role's grants, or an empty slice
// when the role cannot be resolved. The copy keeps the table immutable from
// the caller's side.
func PermissionsForRole(roleName string, table RoleTable) []Permission {
	if roleName == "" || table == nil {
		return []Permission{}
	}
	role, ok := table[roleName]
	if !ok {
		return []Permission{}
	}
	out := make([]Permission, len(role.Permissions))
	copy(out, role.Permissions)
	return out
}

// IsOwner reports whether userID is the guild owner. Ownership is a separate
// authority channel from the role table: owners are all-capable regardless
// of role assignments. Zero ids never match.
func IsOwner(userID, ownerID int64) bool {
	if userID == 0 || ownerID == 0 {
		return false
	}
	return userID == ownerID
}
