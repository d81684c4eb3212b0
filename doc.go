// Package estateauth is the authentication and authorization core of the
// property marketplace: it issues and verifies signed access/refresh token
// pairs, rotates refresh tokens with reuse detection, gates requests on a
// closed role and permission model, and admits traffic through fixed-window
// rate limits.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after [Builder.Build]. All shared
// state (token families, the access-token deny list, rate windows) lives in
// Redis so every request-handling instance sees the same view.
//
// # Architecture boundaries
//
// estateauth is the public surface. It exposes [Engine], [Builder], [Config]
// and value types. Token signing lives in jwt, the family registry in
// session, the limiter in internal/rate, and request orchestration in
// internal/flows. HTTP adapters live in middleware and httpapi.
//
// # Error contract
//
// Every token, session or account failure wraps [ErrUnauthenticated] together
// with a precise kind ([ErrExpired], [ErrReplayDetected], ...). The precise
// kind is for logs and metrics only; HTTP adapters collapse it to 401.
// [ErrUpstreamUnavailable] is deliberately NOT wrapped in ErrUnauthenticated:
// it means the request could not be evaluated and should be retried.
//
// # Performance contract
//
// Authenticate verifies the access token without a store round trip unless
// the route is strict or CheckRevocationOnEveryRequest is set. The user
// lookup is the only network suspension point on the request path and is
// bounded by Account.UserLookupTimeout.
package estateauth
