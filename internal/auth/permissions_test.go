package auth

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleUser, PermDeviceRead, true},
		{RoleUser, PermDeviceOperate, true},
		{RoleUser, PermDeviceConfigure, true},
		{RoleUser, PermSystemAdmin, false},
		{RoleAdmin, PermDeviceOperate, true},
		{RoleAdmin, PermSystemAdmin, true},
		{"guest", PermDeviceRead, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.perm), func(t *testing.T) {
			if got := HasPermission(tt.role, tt.perm); got != tt.want {
				t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.perm, got, tt.want)
			}
		})
	}
}

func TestPermissionsForRole_ReturnsCopy(t *testing.T) {
	perms := PermissionsForRole(RoleUser)
	if len(perms) == 0 {
		t.Fatal("PermissionsForRole(user) returned nothing")
	}

	perms[0] = PermSystemAdmin
	if HasPermission(RoleUser, PermSystemAdmin) {
		t.Error("mutating the returned slice changed the role table")
	}

	if PermissionsForRole("unknown") != nil {
		t.Error("unknown role should have no permissions")
	}
}

func TestIsValidRole(t *testing.T) {
	for _, r := range ValidRoles {
		if !IsValidRole(r) {
			t.Errorf("IsValidRole(%q) = false", r)
		}
	}
	if IsValidRole("panel") {
		t.Error("panel is not a role here")
	}
}
