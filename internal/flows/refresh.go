package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/estateauth/jwt"
	"github.com/MrEthical07/estateauth/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureMissing
	RefreshFailureDecode
	RefreshFailureUpstream
	RefreshFailureAccount
	RefreshFailureFamilyNotFound
	RefreshFailureRevoked
	RefreshFailureFamilyExpired
	RefreshFailureReplay
	RefreshFailureStore
	RefreshFailureSign
)

// RefreshResult carries either the rotated pair or failure metadata.
type RefreshResult struct {
	Failure  RefreshFailureKind
	Err      error
	Subject  string
	FamilyID string
	// FamilyRevoked is set when the flow revoked the family itself.
	FamilyRevoked bool
	Pair          TokenPair
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	ParseRefresh    func(string) (*jwt.RefreshClaims, error)
	LookupAccount   AccountLookup
	LookupTimeout   time.Duration
	UserNotFound    error
	RequireVerified bool
	Tokens          TokenSigner
	Families        FamilyStore
	Warn            func(string, ...any)
}

// RunRefresh rotates refreshToken: it verifies the token, re-resolves the
// account, atomically advances the family and mints a new pair under the
// same family. A stale token revokes the family inside the registry.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if refreshToken == "" {
		return RefreshResult{Failure: RefreshFailureMissing}
	}

	claims, err := deps.ParseRefresh(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}
	res := RefreshResult{Subject: claims.Subject, FamilyID: claims.FamilyID}

	acct, outcome, err := LookupAccount(ctx, deps.LookupAccount, claims.Subject, deps.LookupTimeout, deps.UserNotFound)
	switch {
	case outcome == LookupUnavailable:
		res.Failure, res.Err = RefreshFailureUpstream, err
		return res
	case outcome == LookupNotFound || !acct.Usable(deps.RequireVerified):
		if _, revokeErr := deps.Families.RevokeFamily(ctx, claims.FamilyID); revokeErr != nil {
			deps.Warn("estateauth: revoking family of inactive account failed", "family_id", claims.FamilyID, "error", revokeErr)
		} else {
			res.FamilyRevoked = true
		}
		res.Failure, res.Err = RefreshFailureAccount, err
		return res
	}

	pair, failure, err := mintPair(ctx, acct.Identity(), claims.FamilyID, claims.ID, claims.ExpiresAt.Time, deps.Tokens, deps.Families)
	switch failure {
	case mintFailureNone:
		res.Pair = pair
		return res
	case mintFailureRotate:
		res.Failure, res.Err = rotationFailure(err), err
		res.FamilyRevoked = res.Failure == RefreshFailureReplay
		return res
	case mintFailureSignRefresh:
		if errors.Is(err, jwt.ErrExpired) {
			res.Failure, res.Err = RefreshFailureFamilyExpired, err
			return res
		}
	}
	res.Failure, res.Err = RefreshFailureSign, err
	return res
}

func rotationFailure(err error) RefreshFailureKind {
	switch {
	case errors.Is(err, session.ErrReplayDetected):
		return RefreshFailureReplay
	case errors.Is(err, session.ErrFamilyRevoked):
		return RefreshFailureRevoked
	case errors.Is(err, session.ErrFamilyNotFound):
		return RefreshFailureFamilyNotFound
	case errors.Is(err, session.ErrFamilyExpired):
		return RefreshFailureFamilyExpired
	default:
		return RefreshFailureStore
	}
}
