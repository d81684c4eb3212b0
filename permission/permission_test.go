package permission

import (
	"encoding/json"
	"testing"
)

func TestParseRoleRoundTrip(t *testing.T) {
	for _, r := range Roles() {
		got, err := ParseRole(r.String())
		if err != nil {
			t.Fatalf("parse %q: %v", r, err)
		}
		if got != r {
			t.Fatalf("expected %v, got %v", r, got)
		}
	}
	if _, err := ParseRole("superuser"); err == nil {
		t.Fatal("expected unknown role to fail")
	}
	if _, err := ParseRole("unknown"); err == nil {
		t.Fatal("expected zero role name to be rejected")
	}
	if got, _ := ParseRole("  ADMIN "); got != RoleAdmin {
		t.Fatalf("expected case-insensitive parse, got %v", got)
	}
}

func TestRoleJSONRejectsUnknown(t *testing.T) {
	var v struct {
		Role Role `json:"role"`
	}
	if err := json.Unmarshal([]byte(`{"role":"agent"}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.Role != RoleAgent {
		t.Fatalf("expected agent, got %v", v.Role)
	}
	if err := json.Unmarshal([]byte(`{"role":"root"}`), &v); err == nil {
		t.Fatal("expected unknown role to fail decoding")
	}
	if _, err := json.Marshal(struct{ R Role }{RoleUnknown}); err == nil {
		t.Fatal("expected zero role to fail encoding")
	}
}

func TestSetContains(t *testing.T) {
	granted := Of(ListingRead, ListingWrite, LeadRead)

	if !granted.Contains(Of(ListingRead)) {
		t.Fatal("expected subset to be contained")
	}
	if !granted.Contains(0) {
		t.Fatal("empty requirement must always be satisfied")
	}
	if granted.Contains(Of(ListingRead, UserManage)) {
		t.Fatal("expected missing permission to fail containment")
	}
	if granted.Len() != 3 {
		t.Fatalf("expected 3 permissions, got %d", granted.Len())
	}
	if granted.Without(ListingWrite).Has(ListingWrite) {
		t.Fatal("expected permission to be removed")
	}
}

func TestSetIgnoresUndeclaredBits(t *testing.T) {
	s := Set(1 << 63).With(Permission(200))
	if s.Sanitize() != 0 {
		t.Fatalf("expected undeclared bits to be dropped, got %b", s.Sanitize())
	}
	if s.Has(Permission(63)) {
		t.Fatal("undeclared permission must never be reported")
	}
}

func TestParseSet(t *testing.T) {
	s, err := ParseSet([]string{"listing:read", "crm:sync"})
	if err != nil {
		t.Fatalf("parse set: %v", err)
	}
	if s != Of(ListingRead, CRMSync) {
		t.Fatalf("unexpected set %v", s.Strings())
	}
	if _, err := ParseSet([]string{"listing:read", "listing:delete"}); err == nil {
		t.Fatal("expected unknown permission to fail")
	}
}

func TestSatisfies(t *testing.T) {
	buyer := DefaultPermissions(RoleBuyer)

	tests := []struct {
		name     string
		role     Role
		granted  Set
		allowed  RoleSet
		required Set
		want     bool
	}{
		{"no requirement", RoleBuyer, buyer, 0, 0, true},
		{"buyer on admin route", RoleBuyer, buyer, RolesOf(RoleAdmin), 0, false},
		{"buyer on buyer route", RoleBuyer, buyer, RolesOf(RoleBuyer), 0, true},
		{"admin on buyer route", RoleAdmin, DefaultPermissions(RoleAdmin), RolesOf(RoleBuyer), 0, false},
		{"missing permission", RoleBuyer, buyer, 0, Of(ListingWrite), false},
		{"permission subset", RoleAgent, DefaultPermissions(RoleAgent), RolesOf(RoleAgent, RoleSeller), Of(ListingWrite, LeadRead), true},
		{"unknown role on open route", RoleUnknown, 0, 0, 0, true},
		{"unknown role on gated route", RoleUnknown, validMask, RolesOf(RoleBuyer), 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Satisfies(tc.role, tc.granted, tc.allowed, tc.required); got != tc.want {
				t.Fatalf("Satisfies = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEffectivePermissions(t *testing.T) {
	if Effective(RoleSeller, 0) != DefaultPermissions(RoleSeller) {
		t.Fatal("expected role default when no explicit grant")
	}
	explicit := Of(ListingRead)
	if Effective(RoleSeller, explicit) != explicit {
		t.Fatal("expected explicit grant to win")
	}
	if !DefaultPermissions(RoleAdmin).Contains(Of(UserManage, CRMSync, ModerationReview)) {
		t.Fatal("admin must hold every declared permission")
	}
	if DefaultPermissions(RoleUnknown) != 0 {
		t.Fatal("unknown role must hold nothing")
	}
}

func TestRoleSetList(t *testing.T) {
	s := RolesOf(RoleAdmin, RoleBuyer, RoleUnknown)
	got := s.List()
	if len(got) != 2 || got[0] != RoleBuyer || got[1] != RoleAdmin {
		t.Fatalf("unexpected roles %v", got)
	}
}
