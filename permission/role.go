package permission

import (
	"fmt"
	"strings"
)

// Role is the single role held by an account.
type Role uint8

const (
	// RoleUnknown is the zero value. It never satisfies a role requirement.
	RoleUnknown Role = iota
	RoleBuyer
	RoleSeller
	RoleAgent
	RoleModerator
	RoleAdmin

	roleCount
)

var roleNames = [roleCount]string{
	RoleUnknown:   "unknown",
	RoleBuyer:     "buyer",
	RoleSeller:    "seller",
	RoleAgent:     "agent",
	RoleModerator: "moderator",
	RoleAdmin:     "admin",
}

// Roles returns every assignable role in declaration order.
func Roles() []Role {
	return []Role{RoleBuyer, RoleSeller, RoleAgent, RoleModerator, RoleAdmin}
}

func (r Role) String() string {
	if r >= roleCount {
		return fmt.Sprintf("role(%d)", uint8(r))
	}
	return roleNames[r]
}

// Valid reports whether r is an assignable role.
func (r Role) Valid() bool {
	return r > RoleUnknown && r < roleCount
}

// ParseRole maps a case-insensitive role name to its Role.
func ParseRole(name string) (Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i := RoleBuyer; i < roleCount; i++ {
		if roleNames[i] == name {
			return i, nil
		}
	}
	return RoleUnknown, fmt.Errorf("permission: unknown role %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("permission: cannot encode role %d", uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// RoleSet is a set of roles admitted by a route. The empty set admits any role.
type RoleSet uint32

// RolesOf builds a RoleSet. Invalid roles are ignored.
func RolesOf(roles ...Role) RoleSet {
	var s RoleSet
	for _, r := range roles {
		if r.Valid() {
			s |= 1 << r
		}
	}
	return s
}

// Has reports whether r is a member of s.
func (s RoleSet) Has(r Role) bool {
	if !r.Valid() {
		return false
	}
	return s&(1<<r) != 0
}

// Empty reports whether s declares no roles.
func (s RoleSet) Empty() bool { return s == 0 }

// List returns the members of s in declaration order.
func (s RoleSet) List() []Role {
	var out []Role
	for _, r := range Roles() {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}
