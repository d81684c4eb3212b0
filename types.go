package estateauth

import (
	"context"
	"time"

	"github.com/MrEthical07/estateauth/permission"
)

// UserProvider is the external user store. LookupUser is called on every
// authenticated request and every refresh; GetUserByIdentifier only on
// login. Both return ErrUserNotFound for unknown users; any other error is
// treated as the store being unavailable.
type UserProvider interface {
	LookupUser(ctx context.Context, subject string) (UserRecord, error)
	GetUserByIdentifier(ctx context.Context, identifier string) (UserRecord, error)
}

// PasswordUpdater is implemented by providers that accept re-hashed
// passwords after a successful login with an outdated hash.
type PasswordUpdater interface {
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
}

// UserRecord is the account as seen by the auth core. PasswordHash is only
// needed for GetUserByIdentifier.
type UserRecord struct {
	ID           string
	Identifier   string
	PasswordHash string
	Role         permission.Role
	// Permissions overrides the role defaults when non-empty.
	Permissions permission.Set
	Active      bool
	Verified    bool
	Deleted     bool
}

// Identity is the authenticated context attached to a request.
type Identity struct {
	Subject     string
	Role        permission.Role
	Permissions permission.Set
	// FamilyID is the token family the access token was minted under.
	FamilyID string
	// TokenID is the access token's jti.
	TokenID   string
	ExpiresAt time.Time
}

// Anonymous reports whether the identity carries no subject.
func (i *Identity) Anonymous() bool {
	return i == nil || i.Subject == ""
}

// SessionTokens is the result of issuing or rotating a session.
type SessionTokens struct {
	AccessToken  string
	RefreshToken string
	// ExpiresIn is the access token lifetime.
	ExpiresIn time.Duration
	FamilyID  string
	Subject   string
}

// Requirement is what a route demands of the caller.
type Requirement struct {
	RequireAuth bool
	// AllowedRoles restricts access to these roles when non-empty.
	AllowedRoles permission.RoleSet
	// RequiredPermissions must all be granted.
	RequiredPermissions permission.Set
	// Strict also checks the family and the access-token deny list, so a
	// logout takes effect before the access token expires.
	Strict bool
}

// AdminRequirement is the requirement used by admin-only routes.
func AdminRequirement() Requirement {
	return Requirement{
		RequireAuth:  true,
		AllowedRoles: permission.RolesOf(permission.RoleAdmin),
		Strict:       true,
	}
}

// RouteClass is a sensitivity tier with its own rate ceiling.
type RouteClass string

const (
	RoutePublic        RouteClass = "public"
	RouteAuthenticated RouteClass = "authenticated"
	RouteAuth          RouteClass = "auth"
	RouteAdmin         RouteClass = "admin"
)

// AdmitDecision is the outcome of Engine.Admit.
type AdmitDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAfter time.Duration
}

// FamilyInfo describes a token family for admin tooling.
type FamilyInfo struct {
	ID        string
	Subject   string
	Rotations int64
	Revoked   bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

// EndSessionResult reports what EndSession revoked.
type EndSessionResult struct {
	Subject       string
	FamilyID      string
	FamilyRevoked bool
	AccessRevoked bool
}
