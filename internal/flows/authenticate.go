package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/estateauth/jwt"
	"github.com/MrEthical07/estateauth/permission"
)

// AuthenticateFailureKind classifies request authentication failures.
type AuthenticateFailureKind int

const (
	AuthenticateFailureNone AuthenticateFailureKind = iota
	AuthenticateFailureMissing
	AuthenticateFailureToken
	AuthenticateFailureRevoked
	AuthenticateFailureUpstream
	AuthenticateFailureAccount
	AuthenticateFailureForbidden
)

// AuthenticateInput is the route requirement in flow-local form.
type AuthenticateInput struct {
	RequireAuth         bool
	AllowedRoles        permission.RoleSet
	RequiredPermissions permission.Set
	// CheckRevocation consults the deny list and the family.
	CheckRevocation bool
}

// AuthenticateResult carries the resolved identity or failure metadata.
type AuthenticateResult struct {
	Failure   AuthenticateFailureKind
	Err       error
	Anonymous bool
	Claims    *jwt.AccessClaims
	Identity  Identity
}

// AuthenticateDeps captures request authentication dependencies.
type AuthenticateDeps struct {
	ParseAccess     func(string) (*jwt.AccessClaims, error)
	LookupAccount   AccountLookup
	LookupTimeout   time.Duration
	UserNotFound    error
	RequireVerified bool
	Families        FamilyStore
}

// RunAuthenticate verifies token, optionally checks revocation, resolves
// the subject to a live account and applies the role and permission check.
// Authorization uses the account's current role and permissions, so a
// demotion takes effect before outstanding tokens expire.
func RunAuthenticate(ctx context.Context, token string, in AuthenticateInput, deps AuthenticateDeps) AuthenticateResult {
	if token == "" {
		if !in.RequireAuth {
			return AuthenticateResult{Anonymous: true}
		}
		return AuthenticateResult{Failure: AuthenticateFailureMissing}
	}

	claims, err := deps.ParseAccess(token)
	if err != nil {
		return AuthenticateResult{Failure: AuthenticateFailureToken, Err: err}
	}
	res := AuthenticateResult{Claims: claims}

	if in.CheckRevocation {
		if kind, err := checkRevocation(ctx, claims, deps.Families); kind != AuthenticateFailureNone {
			res.Failure, res.Err = kind, err
			return res
		}
	}

	acct, outcome, err := LookupAccount(ctx, deps.LookupAccount, claims.Subject, deps.LookupTimeout, deps.UserNotFound)
	switch {
	case outcome == LookupUnavailable:
		res.Failure, res.Err = AuthenticateFailureUpstream, err
		return res
	case outcome == LookupNotFound || !acct.Usable(deps.RequireVerified):
		res.Failure, res.Err = AuthenticateFailureAccount, err
		return res
	}

	res.Identity = acct.Identity()
	if !permission.Satisfies(res.Identity.Role, res.Identity.Permissions, in.AllowedRoles, in.RequiredPermissions) {
		res.Failure = AuthenticateFailureForbidden
		return res
	}
	return res
}

func checkRevocation(ctx context.Context, claims *jwt.AccessClaims, families FamilyStore) (AuthenticateFailureKind, error) {
	revoked, err := families.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return AuthenticateFailureUpstream, err
	}
	if revoked {
		return AuthenticateFailureRevoked, nil
	}
	if claims.FamilyID == "" {
		return AuthenticateFailureNone, nil
	}
	live, err := families.IsLive(ctx, claims.FamilyID)
	if err != nil {
		return AuthenticateFailureUpstream, err
	}
	if !live {
		return AuthenticateFailureRevoked, nil
	}
	return AuthenticateFailureNone, nil
}
