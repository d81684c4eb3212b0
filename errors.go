package estateauth

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is the umbrella for every failure surfaced to
	// clients as 401.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrMalformed reports a structurally invalid token.
	ErrMalformed = errors.New("token malformed")
	// ErrExpired reports a token past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrSignatureInvalid reports a tampered token or one signed with another key.
	ErrSignatureInvalid = errors.New("token signature invalid")
	// ErrRevoked reports a token whose family or id was explicitly invalidated.
	ErrRevoked = errors.New("token revoked")
	// ErrReplayDetected reports reuse of a consumed refresh token. The family
	// is revoked as a side effect.
	ErrReplayDetected = errors.New("refresh token replay detected")
	// ErrAccountInactive reports an account that is inactive, deleted,
	// unknown, or unverified while verification is required.
	ErrAccountInactive = errors.New("account inactive")
	// ErrInvalidCredentials reports a failed password login.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrForbidden reports an authenticated identity lacking the required
	// role or permissions.
	ErrForbidden = errors.New("forbidden")
	// ErrRateLimited reports an exhausted window or login throttle.
	ErrRateLimited = errors.New("rate limited")
	// ErrUpstreamUnavailable reports that the user store or Redis could not
	// be consulted in time. Callers should retry.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrMissingInput reports an empty token, identifier or password.
	ErrMissingInput = errors.New("missing input")
	// ErrUserNotFound is returned by UserProvider implementations for
	// unknown subjects or identifiers.
	ErrUserNotFound = errors.New("user not found")
	// ErrUnknownRouteClass reports a RouteClass without a configured policy.
	ErrUnknownRouteClass = errors.New("unknown route class")
	// ErrFamilyNotFound is returned by FamilyInfo for unknown or expired
	// families.
	ErrFamilyNotFound = errors.New("token family not found")
	// ErrEngineNotReady reports use of a nil or incompletely built Engine.
	ErrEngineNotReady = errors.New("engine not ready")
)

// unauthenticated wraps kind under ErrUnauthenticated so callers can match
// either.
func unauthenticated(kind error) error {
	return fmt.Errorf("%w: %w", ErrUnauthenticated, kind)
}

// unavailable wraps a store or provider failure under
// ErrUpstreamUnavailable, keeping the cause for logs.
func unavailable(cause error) error {
	if cause == nil {
		return ErrUpstreamUnavailable
	}
	return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, cause)
}
