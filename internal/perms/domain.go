// Package perms evaluates guild capabilities for an actor. Every query is
// pure and fail-closed: absent or malformed data always evaluates to "deny".
package perms

// Permission is an atomic capability tag. The set is closed; role tables
// referencing unknown tags simply never match a required permission.
type Permission string

const (
	ManageMembers      Permission = "manage-members"
	ManageEvents       Permission = "manage-events"
	ManageSettings     Permission = "manage-settings"
	ManageRoles        Permission = "manage-roles"
	ManageApplications Permission = "manage-applications"
	ManageAchievements Permission = "manage-achievements"
	ViewAuditLog       Permission = "view-audit-log"
)

// All lists every known permission, ordered for stable presentation.
func All() []Permission {
	return []Permission{
		ManageMembers,
		ManageEvents,
		ManageSettings,
		ManageRoles,
		ManageApplications,
		ManageAchievements,
		ViewAuditLog,
	}
}

// Valid reports whether p names a known permission.
func (p Permission) Valid() bool {
	switch p {
	case ManageMembers, ManageEvents, ManageSettings, ManageRoles,
		ManageApplications, ManageAchievements, ViewAuditLog:
		return true
	}
	return false
}

// Role groups the permissions granted to members holding it.
type Role struct {
	Permissions []Permission
}

// RoleTable maps role names to their grants within one guild.
type RoleTable map[string]Role
