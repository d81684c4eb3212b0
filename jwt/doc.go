// Package jwt signs and verifies the access and refresh tokens issued by
// estateauth.
//
// Access tokens carry subject, role, permission set, family id and a unique
// jti. Refresh tokens carry subject, family id and jti. Both carry a typ claim
// so that one can never be presented as the other.
//
// Verification is stateless and returns errors wrapping [ErrMalformed],
// [ErrExpired] or [ErrSignatureInvalid]. Revocation is the session package's
// concern.
package jwt
