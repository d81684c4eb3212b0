package rate

import "errors"

var (
	// ErrRateLimited is returned by the login throttle when the budget is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps counter store failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
