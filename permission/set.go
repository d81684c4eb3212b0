package permission

import (
	"fmt"
	"math/bits"
	"strings"
)

// Permission is a bit position inside a [Set].
type Permission uint8

const (
	ListingRead Permission = iota
	ListingWrite
	ListingPublish
	FavoritesManage
	CartManage
	LeadRead
	LeadManage
	ModerationReview
	UserManage
	CRMSync

	permissionCount
)

var permissionNames = [permissionCount]string{
	ListingRead:      "listing:read",
	ListingWrite:     "listing:write",
	ListingPublish:   "listing:publish",
	FavoritesManage:  "favorites:manage",
	CartManage:       "cart:manage",
	LeadRead:         "lead:read",
	LeadManage:       "lead:manage",
	ModerationReview: "moderation:review",
	UserManage:       "user:manage",
	CRMSync:          "crm:sync",
}

func (p Permission) String() string {
	if p >= permissionCount {
		return fmt.Sprintf("permission(%d)", uint8(p))
	}
	return permissionNames[p]
}

// Valid reports whether p is a declared permission.
func (p Permission) Valid() bool { return p < permissionCount }

// ParsePermission maps a permission name such as "listing:write" to its bit.
func ParsePermission(name string) (Permission, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i := Permission(0); i < permissionCount; i++ {
		if permissionNames[i] == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("permission: unknown permission %q", name)
}

// Set is a 64-bit permission mask.
type Set uint64

const validMask = Set(1)<<permissionCount - 1

// Of builds a Set from permissions. Undeclared permissions are ignored.
func Of(perms ...Permission) Set {
	var s Set
	for _, p := range perms {
		s = s.With(p)
	}
	return s
}

// With returns s with p added.
func (s Set) With(p Permission) Set {
	if !p.Valid() {
		return s
	}
	return s | 1<<p
}

// Without returns s with p removed.
func (s Set) Without(p Permission) Set {
	if !p.Valid() {
		return s
	}
	return s &^ (1 << p)
}

// Has reports whether p is in s.
func (s Set) Has(p Permission) bool {
	if !p.Valid() {
		return false
	}
	return s&(1<<p) != 0
}

// Contains reports whether s is a superset of required.
func (s Set) Contains(required Set) bool {
	return s&required == required
}

// Sanitize drops bits that do not map to a declared permission.
func (s Set) Sanitize() Set { return s & validMask }

// Len returns the number of permissions in s.
func (s Set) Len() int { return bits.OnesCount64(uint64(s.Sanitize())) }

// Raw returns the underlying mask.
func (s Set) Raw() uint64 { return uint64(s) }

// List returns the permissions in s in bit order.
func (s Set) List() []Permission {
	out := make([]Permission, 0, s.Len())
	for p := Permission(0); p < permissionCount; p++ {
		if s.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// Strings returns the permission names in s in bit order.
func (s Set) Strings() []string {
	perms := s.List()
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = p.String()
	}
	return out
}

// ParseSet builds a Set from permission names. The first unknown name fails.
func ParseSet(names []string) (Set, error) {
	var s Set
	for _, n := range names {
		p, err := ParsePermission(n)
		if err != nil {
			return 0, err
		}
		s = s.With(p)
	}
	return s, nil
}
