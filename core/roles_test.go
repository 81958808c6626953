package core

import "testing"

func TestDerivePermissionsLevels(t *testing.T) {
	cases := []struct {
		name    string
		rec     RoleRecord
		admin   bool
		manager bool
		owner   bool
	}{
		{"plain user", RoleRecord{Role: "user", Level: LevelUser}, false, false, false},
		{"handler", RoleRecord{Role: "support", Level: LevelHandler}, true, false, false},
		{"manager", RoleRecord{Role: "manager", Level: LevelManager}, true, true, false},
		{"owner level", RoleRecord{Role: "owner", Level: LevelOwner}, true, true, false},
		{"owner flag", RoleRecord{Role: "owner", Level: LevelOwner, IsOwner: true}, true, true, true},
		{"owner flag low level", RoleRecord{Role: "founder", Level: LevelHandler, IsOwner: true}, true, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := DerivePermissions(tc.rec)
			if p.IsAdmin != tc.admin {
				t.Fatalf("IsAdmin = %v, want %v", p.IsAdmin, tc.admin)
			}
			if p.IsManager != tc.manager {
				t.Fatalf("IsManager = %v, want %v", p.IsManager, tc.manager)
			}
			if p.CanManageAdmins != tc.owner {
				t.Fatalf("CanManageAdmins = %v, want %v", p.CanManageAdmins, tc.owner)
			}
		})
	}
}

// Capability flags must widen monotonically with level: everything a handler
// can do, a manager can do, and so on.
func TestDerivePermissionsMonotonic(t *testing.T) {
	flags := func(p Permissions) []bool {
		return []bool{
			p.CanViewUsers, p.CanViewServers, p.CanViewServices, p.CanViewTransactions,
			p.CanViewPromoCodes, p.CanViewActivations, p.CanHandleTickets,
			p.CanEditUsers, p.CanEditBalance, p.CanResetPasswords, p.CanBanUsers,
			p.CanManageServers, p.CanManageServices, p.CanManagePricing,
			p.CanManagePromoCodes, p.CanManagePayments,
		}
	}
	prev := flags(DerivePermissions(RoleRecord{Role: "user", Level: LevelUser}))
	for _, level := range []int{LevelHandler, LevelManager, LevelOwner} {
		cur := flags(DerivePermissions(RoleRecord{Role: "admin", Level: level}))
		for i := range cur {
			if prev[i] && !cur[i] {
				t.Fatalf("level %d lost capability %d held by level below", level, i)
			}
		}
		prev = cur
	}
}

// A manager (level 2) gets every any-admin view plus every manager edit, but
// no owner-only capability.
func TestManagerCapabilitySet(t *testing.T) {
	p := DerivePermissions(RoleRecord{Role: "manager", Level: LevelManager})
	for name, got := range map[string]bool{
		"CanViewUsers":        p.CanViewUsers,
		"CanViewTransactions": p.CanViewTransactions,
		"CanEditUsers":        p.CanEditUsers,
		"CanEditBalance":      p.CanEditBalance,
		"CanResetPasswords":   p.CanResetPasswords,
		"CanBanUsers":         p.CanBanUsers,
		"CanManageServers":    p.CanManageServers,
		"CanManagePromoCodes": p.CanManagePromoCodes,
		"CanManagePayments":   p.CanManagePayments,
	} {
		if !got {
			t.Fatalf("manager should have %s", name)
		}
	}
	if p.CanManageAdmins {
		t.Fatalf("manager must not manage admins without the owner flag")
	}
	if p.IsOwner {
		t.Fatalf("manager is not owner")
	}
}

func TestNoAccessIsEmpty(t *testing.T) {
	p := NoAccess()
	if p.IsAdmin || p.CanViewUsers || p.CanEditBalance || p.CanManageAdmins {
		t.Fatalf("NoAccess must grant nothing: %+v", p)
	}
}
