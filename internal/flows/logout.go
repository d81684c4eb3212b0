package flows

import (
	"context"

	"github.com/MrEthical07/estateauth/jwt"
)

// LogoutFailureKind classifies logout flow failures for root-level mapping.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureMissing
	LogoutFailureUnrecognized
	LogoutFailureStore
)

// LogoutResult reports what was revoked.
type LogoutResult struct {
	Failure       LogoutFailureKind
	Err           error
	Subject       string
	FamilyID      string
	FamilyRevoked bool
	AccessRevoked bool
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	ParseAccess  func(string) (*jwt.AccessClaims, error)
	ParseRefresh func(string) (*jwt.RefreshClaims, error)
	// IsFamilyID recognizes a raw family id.
	IsFamilyID func(string) bool
	// ImmediateRevocation also denies the presented access token until it
	// expires.
	ImmediateRevocation bool
	Families            FamilyStore
}

// RunLogout ends the session named by value, which may be an access token,
// a refresh token or a raw family id. Revoking an already dead family
// succeeds.
func RunLogout(ctx context.Context, value string, deps LogoutDeps) LogoutResult {
	if value == "" {
		return LogoutResult{Failure: LogoutFailureMissing}
	}

	if claims, err := deps.ParseAccess(value); err == nil {
		res := LogoutResult{Subject: claims.Subject, FamilyID: claims.FamilyID}
		if deps.ImmediateRevocation {
			if err := deps.Families.RevokeAccessToken(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
				res.Failure, res.Err = LogoutFailureStore, err
				return res
			}
			res.AccessRevoked = true
		}
		if claims.FamilyID != "" {
			return revokeFamily(ctx, res, deps.Families)
		}
		return res
	}

	if claims, err := deps.ParseRefresh(value); err == nil {
		return revokeFamily(ctx, LogoutResult{Subject: claims.Subject, FamilyID: claims.FamilyID}, deps.Families)
	}

	if deps.IsFamilyID != nil && deps.IsFamilyID(value) {
		return revokeFamily(ctx, LogoutResult{FamilyID: value}, deps.Families)
	}

	return LogoutResult{Failure: LogoutFailureUnrecognized}
}

func revokeFamily(ctx context.Context, res LogoutResult, families FamilyStore) LogoutResult {
	revoked, err := families.RevokeFamily(ctx, res.FamilyID)
	if err != nil {
		res.Failure, res.Err = LogoutFailureStore, err
		return res
	}
	res.FamilyRevoked = revoked
	return res
}
