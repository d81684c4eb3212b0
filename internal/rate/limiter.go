package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Policy is a fixed-window ceiling: at most Limit admissions per Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Valid reports whether p can be enforced.
func (p Policy) Valid() bool {
	return p.Limit > 0 && p.Window >= time.Millisecond
}

// Decision is the outcome of one Admit call.
type Decision struct {
	Allowed bool
	Limit   int
	// Remaining is the number of admissions left in the current window.
	Remaining int
	// RetryAfter is the time until the window resets. Zero when allowed.
	RetryAfter time.Duration
	// ResetAfter is the time until the window resets, set in both outcomes.
	ResetAfter time.Duration
}

// Config holds the login-throttle tuning that sits beside the route windows.
type Config struct {
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

// Limiter keeps fixed-window counters in Redis so that every instance
// shares one budget per key.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	config Config
}

// New creates a Limiter backed by redisClient under prefix.
func New(redisClient redis.UniversalClient, prefix string, cfg Config) *Limiter {
	if prefix == "" {
		prefix = "ea"
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
		config: cfg,
	}
}

// admitScript never lets the stored count exceed the limit: a denied request
// reads the counter without incrementing it. The window starts at the first
// admitted request and resets when the key expires.
const admitScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local count = tonumber(redis.call("GET", key) or "0")
if count >= limit then
  local ttl = redis.call("PTTL", key)
  if ttl < 0 then
    redis.call("PEXPIRE", key, window)
    ttl = window
  end
  return {0, count, ttl}
end

count = redis.call("INCR", key)
if count == 1 then
  redis.call("PEXPIRE", key, window)
end
local ttl = redis.call("PTTL", key)
if ttl < 0 then
  redis.call("PEXPIRE", key, window)
  ttl = window
end
return {1, count, ttl}
`

var admitLua = redis.NewScript(admitScript)

// Admit counts one request for (class, clientID) against policy. It never
// blocks beyond the single Redis round trip.
func (l *Limiter) Admit(ctx context.Context, class, clientID string, policy Policy) (Decision, error) {
	if !policy.Valid() {
		return Decision{}, fmt.Errorf("invalid rate policy for class %q", class)
	}

	res, err := admitLua.Run(
		ctx,
		l.redis,
		[]string{l.windowKey(class, clientID)},
		policy.Limit,
		policy.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("%w: unexpected admit result", ErrRedisUnavailable)
	}

	count := int(res[1])
	ttl := time.Duration(res[2]) * time.Millisecond
	d := Decision{
		Allowed:    res[0] == 1,
		Limit:      policy.Limit,
		Remaining:  max(policy.Limit-count, 0),
		ResetAfter: ttl,
	}
	if !d.Allowed {
		d.RetryAfter = ttl
	}
	return d, nil
}

// CheckLogin reports ErrRateLimited when the identifier or IP has spent its
// failed-login budget.
func (l *Limiter) CheckLogin(ctx context.Context, identifier, ip string) error {
	if l.config.MaxLoginAttempts <= 0 {
		return nil
	}
	if err := l.checkCounter(ctx, l.loginUserKey(identifier), l.config.MaxLoginAttempts); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, l.loginIPKey(ip), l.config.MaxLoginAttempts); err != nil {
			return err
		}
	}
	return nil
}

// IncrementLogin records a failed login for the identifier and IP.
func (l *Limiter) IncrementLogin(ctx context.Context, identifier, ip string) error {
	if l.config.MaxLoginAttempts <= 0 {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, l.loginUserKey(identifier), l.config.LoginCooldownDuration)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, l.loginIPKey(ip), l.config.LoginCooldownDuration)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxLoginAttempts) {
			return ErrRateLimited
		}
	}
	return nil
}

// ResetLogin clears the identifier's failed-login counter after a success.
// The IP counter is left alone so one good account cannot launder an IP.
func (l *Limiter) ResetLogin(ctx context.Context, identifier string) error {
	if err := l.redis.Del(ctx, l.loginUserKey(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(maxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}
