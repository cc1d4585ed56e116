package auth

import "testing"

func TestPermissionSetFromRole(t *testing.T) {
	role := Role{ID: "accountant", Capabilities: map[Capability]bool{
		CanAddRevenue:      true,
		CanViewRevenue:     true,
		CanManageUsers:     false,
		"canLaunchMissiles": true,
	}}

	set := NewPermissionSet(role, "branch-1")

	if !set.Has(CanAddRevenue) {
		t.Fatalf("expected canAddRevenue")
	}
	if set.Has(CanManageUsers) {
		t.Fatalf("ungranted flag must not be present")
	}
	if set.Has("canLaunchMissiles") {
		t.Fatalf("unknown flag must be dropped")
	}
	if set.BranchID() != "branch-1" {
		t.Fatalf("unexpected branch %q", set.BranchID())
	}
	got := set.List()
	if len(got) != 2 || got[0] != CanAddRevenue || got[1] != CanViewRevenue {
		t.Fatalf("unexpected list %v", got)
	}
}

func TestPermissionSetIsolatedFromRoleMutation(t *testing.T) {
	caps := map[Capability]bool{CanViewRevenue: true}
	set := NewPermissionSet(Role{Capabilities: caps}, "")
	caps[CanManageUsers] = true

	if set.Has(CanManageUsers) {
		t.Fatalf("permission set must not observe later role changes")
	}
}

func TestZeroPermissionSetGrantsNothing(t *testing.T) {
	var set PermissionSet
	for _, c := range BuiltinCapabilities {
		if set.Has(c) {
			t.Fatalf("zero set granted %s", c)
		}
	}
}
