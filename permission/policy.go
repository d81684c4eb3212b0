package permission

// rolePermissions is the default grant for each role. Admin holds every
// declared permission.
var rolePermissions = [roleCount]Set{
	RoleUnknown:   0,
	RoleBuyer:     Of(ListingRead, FavoritesManage, CartManage),
	RoleSeller:    Of(ListingRead, ListingWrite, ListingPublish, LeadRead),
	RoleAgent:     Of(ListingRead, ListingWrite, ListingPublish, LeadRead, LeadManage, CRMSync),
	RoleModerator: Of(ListingRead, ModerationReview, LeadRead),
	RoleAdmin:     validMask,
}

// DefaultPermissions returns the permissions granted to r when the user store
// does not carry an explicit grant.
func DefaultPermissions(r Role) Set {
	if !r.Valid() {
		return 0
	}
	return rolePermissions[r]
}

// Effective returns explicit when it is non-empty, otherwise the role default.
// The result never contains undeclared bits.
func Effective(r Role, explicit Set) Set {
	if explicit.Sanitize() != 0 {
		return explicit.Sanitize()
	}
	return DefaultPermissions(r)
}

// Satisfies decides an authorization check.
//
// The role must be a member of allowed unless allowed is empty, and granted
// must be a superset of required. An invalid role never satisfies a non-empty
// allowed set.
func Satisfies(role Role, granted Set, allowed RoleSet, required Set) bool {
	if !allowed.Empty() && !allowed.Has(role) {
		return false
	}
	return granted.Sanitize().Contains(required)
}
