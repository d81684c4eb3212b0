package flows

import (
	"context"
	"errors"
	"time"
)

// IssueFailureKind classifies issue flow failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureInput
	IssueFailureCreateFamily
	IssueFailureSign
	IssueFailureBind
)

// IssueResult carries either the new family's token pair or failure metadata.
type IssueResult struct {
	Failure  IssueFailureKind
	Err      error
	FamilyID string
	Pair     TokenPair
}

// IssueDeps captures issue flow dependencies.
type IssueDeps struct {
	Tokens   TokenSigner
	Families FamilyStore
	Warn     func(string, ...any)
}

// RunIssue starts a new token family for id and mints its first pair. The
// family lives as long as one refresh token; later rotations never extend it.
func RunIssue(ctx context.Context, id Identity, deps IssueDeps) IssueResult {
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if id.Subject == "" || !id.Role.Valid() {
		return IssueResult{
			Failure: IssueFailureInput,
			Err:     errors.New("issue requires a subject and a valid role"),
		}
	}

	fam, err := deps.Families.CreateFamily(ctx, id.Subject, deps.Tokens.RefreshTTL())
	if err != nil {
		return IssueResult{Failure: IssueFailureCreateFamily, Err: err}
	}

	pair, failure, err := mintPair(ctx, id, fam.ID, "", fam.ExpiresAt, deps.Tokens, deps.Families)
	if err != nil {
		if _, revokeErr := deps.Families.RevokeFamily(ctx, fam.ID); revokeErr != nil {
			deps.Warn("estateauth: revoking half-issued family failed", "family_id", fam.ID, "error", revokeErr)
		}
		return IssueResult{Failure: issueFailureFor(failure), Err: err, FamilyID: fam.ID}
	}

	return IssueResult{FamilyID: fam.ID, Pair: pair}
}

type mintFailure int

const (
	mintFailureNone mintFailure = iota
	mintFailureSignRefresh
	mintFailureRotate
	mintFailureSignAccess
)

func issueFailureFor(f mintFailure) IssueFailureKind {
	if f == mintFailureRotate {
		return IssueFailureBind
	}
	return IssueFailureSign
}

// mintPair signs the next refresh token, advances the family from
// presentedID to its jti, and only then signs the access token. A refresh
// token that loses the compare-and-swap is never returned.
func mintPair(
	ctx context.Context,
	id Identity,
	familyID, presentedID string,
	notAfter time.Time,
	tokens TokenSigner,
	families FamilyStore,
) (TokenPair, mintFailure, error) {
	refresh, refreshClaims, err := tokens.IssueRefresh(id.Subject, familyID, notAfter)
	if err != nil {
		return TokenPair{}, mintFailureSignRefresh, err
	}

	if _, err := families.RecordRotation(ctx, familyID, presentedID, refreshClaims.ID); err != nil {
		return TokenPair{}, mintFailureRotate, err
	}

	access, accessClaims, err := tokens.IssueAccess(id.Subject, id.Role, id.Permissions, familyID)
	if err != nil {
		return TokenPair{}, mintFailureSignAccess, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		Access:       accessClaims,
		Refresh:      refreshClaims,
		ExpiresIn:    tokens.AccessTTL(),
	}, mintFailureNone, nil
}
