// Package session is the Redis-backed session registry: the live/revoked
// state of refresh-token families and the optional deny list of individual
// access tokens.
//
// # Layout
//
// A family is a Redis hash at <prefix>:fam:<id> holding the subject, the id
// of the current refresh token, a rotation counter, a revoked flag and the
// absolute expiry. The key expires with the family. Revoked families keep
// their record until that expiry so every token ever issued under them is
// rejected. <prefix>:usr:<subject> indexes a subject's families and
// <prefix>:rat:<jti> marks a revoked access token.
//
// # Concurrency
//
// Rotation is a single Lua compare-and-swap. Two concurrent rotations with
// the same refresh token cannot both succeed: the loser sees a stale id,
// which is replay, and the family is revoked.
//
// # What this package must NOT do
//
//   - Parse or sign tokens.
//   - Make authorization decisions.
//   - Store refresh or access tokens themselves; only their ids.
package session
