// Package middleware exposes the HTTP side of the auth core: route guards,
// rate-limit gates and the JSON failure writer.
//
// # Guards
//
//   - [WithAuth] wraps a handler with a [estateauth.Requirement].
//   - [WithAdmin] wraps a handler with [estateauth.AdminRequirement].
//   - [Guard] is the func(http.Handler) http.Handler form for routers.
//   - [Authenticate] resolves a request without wrapping, for handlers that
//     want an optional identity.
//
// Tokens are read from the Authorization bearer header, falling back to the
// access_token cookie for browser navigation that cannot set headers.
//
// # Failure mapping
//
// Every Engine error is collapsed by [StatusFor] and [ErrorCode]. Malformed,
// expired, bad-signature, revoked and inactive-account failures all answer
// 401 "unauthenticated"; the precise kind stays in logs and metrics.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to the Engine).
//   - Access Redis (the Engine handles I/O).
//   - Run any part of the wrapped handler before the guard has decided.
package middleware
