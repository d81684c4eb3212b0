package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/estateauth/jwt"
	"github.com/MrEthical07/estateauth/permission"
	"github.com/MrEthical07/estateauth/session"
)

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow.
type Deps struct {
	Issue        IssueDeps
	Refresh      RefreshDeps
	Authenticate AuthenticateDeps
	Login        LoginDeps
	Logout       LogoutDeps
}

// Identity is what a token pair is minted for.
type Identity struct {
	Subject     string
	Role        permission.Role
	Permissions permission.Set
}

// TokenSigner is the subset of jwt.Manager used by issuing flows.
type TokenSigner interface {
	IssueAccess(subject string, role permission.Role, perms permission.Set, familyID string) (string, *jwt.AccessClaims, error)
	IssueRefresh(subject, familyID string, notAfter time.Time) (string, *jwt.RefreshClaims, error)
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

// FamilyStore is the subset of session.Store used by the flows.
type FamilyStore interface {
	CreateFamily(ctx context.Context, subject string, ttl time.Duration) (*session.Family, error)
	RecordRotation(ctx context.Context, familyID, presentedID, nextID string) (*session.Rotation, error)
	RevokeFamily(ctx context.Context, familyID string) (bool, error)
	IsLive(ctx context.Context, familyID string) (bool, error)
	RevokeAccessToken(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsAccessTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

// TokenPair is a freshly minted access/refresh pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	Access       *jwt.AccessClaims
	Refresh      *jwt.RefreshClaims
	ExpiresIn    time.Duration
}
