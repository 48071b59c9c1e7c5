package perms

import "testing"

func sampleTable() RoleTable {
	return RoleTable{
		"officer": {Permissions: []Permission{ManageMembers, ManageEvents}},
		"scribe":  {Permissions: []Permission{ViewAuditLog}},
		"recruit": {Permissions: []Permission{}},
	}
}

func TestHasPermissionGrantsOnlyListedCapabilities(t *testing.T) {
	table := sampleTable()
	if !HasPermission("officer", table, ManageMembers) {
		t.Fatalf("officer should manage members")
	}
	if !HasPermission("officer", table, ManageEvents) {
		t.Fatalf("officer should manage events")
	}
	if HasPermission("officer", table, ManageRoles) {
		t.Fatalf("officer must not manage roles")
	}
	if HasPermission("recruit", table, ManageMembers) {
		t.Fatalf("empty permission set must deny")
	}
}

func TestHasPermissionFailsClosed(t *testing.T) {
	table := sampleTable()
	for _, p := range All() {
		if HasPermission("ghost", table, p) {
			t.Fatalf("unknown role granted %s", p)
		}
		if HasPermission("", table, p) {
			t.Fatalf("empty role name granted %s", p)
		}
		if HasPermission("officer", nil, p) {
			t.Fatalf("nil table granted %s", p)
		}
	}
}

func TestPermissionsForRoleReturnsCopy(t *testing.T) {
	table := sampleTable()
	got := PermissionsForRole("scribe", table)
	if len(got) != 1 || got[0] != ViewAuditLog {
		t.Fatalf("unexpected permissions: %v", got)
	}
	got[0] = ManageRoles
	if table["scribe"].Permissions[0] != ViewAuditLog {
		t.Fatalf("mutating the result leaked into the table")
	}
}

func TestPermissionsForRoleAbsenceYieldsEmptySet(t *testing.T) {
	table := sampleTable()
	cases := []struct {
		name  string
		role  string
		table RoleTable
	}{
		{"unknown role", "ghost", table},
		{"empty role name", "", table},
		{"nil table", "officer", nil},
	}
	for _, tc := range cases {
		got := PermissionsForRole(tc.role, tc.table)
		if got == nil {
			t.Fatalf("%s: expected empty slice, got nil", tc.name)
		}
		if len(got) != 0 {
			t.Fatalf("%s: expected empty set, got %v", tc.name, got)
		}
	}
}

func TestIsOwner(t *testing.T) {
	if !IsOwner(7, 7) {
		t.Fatalf("matching ids should be owner")
	}
	if IsOwner(7, 8) {
		t.Fatalf("non-matching ids should not be owner")
	}
	if IsOwner(0, 0) || IsOwner(0, 7) || IsOwner(7, 0) {
		t.Fatalf("zero ids must never match")
	}
}

func TestPermissionValid(t *testing.T) {
	for _, p := range All() {
		if !p.Valid() {
			t.Fatalf("%s should be valid", p)
		}
	}
	if Permission("manage-universe").Valid() {
		t.Fatalf("unknown tag should be invalid")
	}
}
