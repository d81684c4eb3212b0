// Package httpapi serves the auth endpoints over JSON:
//
//	POST /auth/login    {identifier, password}
//	POST /auth/refresh  {refreshToken}, or the refresh_token cookie
//	POST /auth/logout   {token}, or the bearer header
//	GET  /auth/me
//
// Successful token responses are {success, token, refreshToken, expiresIn}
// with expiresIn in seconds. Failures use middleware.Failure.
package httpapi
