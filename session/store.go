package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps any transport or server failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrFamilyNotFound is returned when no family exists under the id. An
	// unknown family is never live.
	ErrFamilyNotFound = errors.New("token family not found")
	// ErrFamilyRevoked is returned when the family was explicitly revoked.
	ErrFamilyRevoked = errors.New("token family revoked")
	// ErrFamilyExpired is returned when the family outlived its absolute lifetime.
	ErrFamilyExpired = errors.New("token family expired")
	// ErrReplayDetected is returned when a consumed refresh token is presented.
	// The family is revoked before the error is returned.
	ErrReplayDetected = errors.New("refresh token replay detected")
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusRevoked  int64 = 1
	rotateStatusExpired  int64 = 2
	rotateStatusReplay   int64 = 3
	rotateStatusRotated  int64 = 4
)

// rotateFamilyScript performs the compare-and-swap on the family's current
// refresh token id. A mismatch revokes the family in the same step so that a
// racing rotation can never observe a half-applied state.
const rotateFamilyScript = `
local fam = KEYS[1]
local presented = ARGV[1]
local next_id = ARGV[2]
local now_unix = tonumber(ARGV[3])

local f = redis.call("HMGET", fam, "sub", "cur", "rev", "exp")
if not f[1] then
  return {0}
end
if f[3] == "1" then
  return {1}
end
local exp = tonumber(f[4]) or 0
if exp <= now_unix then
  return {2}
end
if (f[2] or "") ~= presented then
  redis.call("HSET", fam, "rev", "1")
  return {3}
end

redis.call("HSET", fam, "cur", next_id)
local ctr = redis.call("HINCRBY", fam, "ctr", 1)
return {4, ctr, exp}
`

var rotateFamilyLua = redis.NewScript(rotateFamilyScript)

const revokeFamilyScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  redis.call("SREM", KEYS[2], ARGV[1])
  return 0
end
redis.call("HSET", KEYS[1], "rev", "1")
redis.call("SREM", KEYS[2], ARGV[1])
return 1
`

var revokeFamilyLua = redis.NewScript(revokeFamilyScript)

// Store is the Redis-backed session registry. Every mutation of a family is a
// single Redis command or Lua script, so concurrent rotations on one family
// serialize inside Redis while different families never contend.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore creates a registry under the given key prefix. A nil clock means
// time.Now.
func NewStore(client redis.UniversalClient, prefix string, now func() time.Time) *Store {
	if prefix == "" {
		prefix = "ea"
	}
	if now == nil {
		now = time.Now
	}
	return &Store{redis: client, prefix: prefix, now: now}
}

func (s *Store) familyKey(familyID string) string {
	return s.prefix + ":fam:" + familyID
}

func (s *Store) subjectKey(subject string) string {
	return s.prefix + ":usr:" + subject
}

func (s *Store) accessKey(tokenID string) string {
	return s.prefix + ":rat:" + tokenID
}

// CreateFamily starts a new family for subject that lives at most ttl. The
// family has no current token until the first RecordRotation, which binds
// the initial refresh token by presenting an empty id.
func (s *Store) CreateFamily(ctx context.Context, subject string, ttl time.Duration) (*Family, error) {
	if subject == "" {
		return nil, errors.New("family requires a subject")
	}
	if ttl < time.Second {
		return nil, errors.New("family ttl must be at least one second")
	}

	now := s.now().Truncate(time.Second)
	fam := &Family{
		ID:        uuid.NewString(),
		Subject:   subject,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	famKey := s.familyKey(fam.ID)
	subjectKey := s.subjectKey(subject)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, famKey,
			fieldSubject, subject,
			fieldCurrent, "",
			fieldCounter, 0,
			fieldRevoked, "0",
			fieldExpires, fam.ExpiresAt.Unix(),
			fieldCreated, now.Unix(),
		)
		pipe.PExpire(ctx, famKey, ttl)
		pipe.SAdd(ctx, subjectKey, fam.ID)
		pipe.PExpire(ctx, subjectKey, ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return fam, nil
}

// RecordRotation atomically advances the family from presentedID to nextID.
//
// It fails with ErrFamilyRevoked (or ErrFamilyNotFound, ErrFamilyExpired)
// when the family is dead. When presentedID is not the family's current
// token the family is revoked and ErrReplayDetected is returned.
func (s *Store) RecordRotation(ctx context.Context, familyID, presentedID, nextID string) (*Rotation, error) {
	if familyID == "" || nextID == "" {
		return nil, errors.New("rotation requires family and next token id")
	}

	res, err := rotateFamilyLua.Run(
		ctx,
		s.redis,
		[]string{s.familyKey(familyID)},
		presentedID,
		nextID,
		s.now().Unix(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) == 0 {
		return nil, fmt.Errorf("%w: unexpected rotate result", ErrRedisUnavailable)
	}
	status, ok := values[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotate status", ErrRedisUnavailable)
	}

	switch status {
	case rotateStatusNotFound:
		return nil, ErrFamilyNotFound
	case rotateStatusRevoked:
		return nil, ErrFamilyRevoked
	case rotateStatusExpired:
		return nil, ErrFamilyExpired
	case rotateStatusReplay:
		return nil, ErrReplayDetected
	case rotateStatusRotated:
		if len(values) < 3 {
			return nil, fmt.Errorf("%w: missing rotation payload", ErrRedisUnavailable)
		}
		ctr, _ := values[1].(int64)
		exp, _ := values[2].(int64)
		return &Rotation{
			FamilyID:  familyID,
			Counter:   ctr,
			ExpiresAt: time.Unix(exp, 0),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown rotate status %d", ErrRedisUnavailable, status)
	}
}

// DetectReplay reports whether presentedID differs from the family's current
// token id. It does not mutate state; RecordRotation performs the same check
// atomically and is what refresh uses.
func (s *Store) DetectReplay(ctx context.Context, familyID, presentedID string) (bool, error) {
	cur, err := s.redis.HGet(ctx, s.familyKey(familyID), fieldCurrent).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, ErrFamilyNotFound
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return cur != presentedID, nil
}

// RevokeFamily marks the family dead. Revoking a revoked or unknown family
// is a no-op. The revoked record is kept until the family's natural expiry
// so later presentations report ErrFamilyRevoked.
func (s *Store) RevokeFamily(ctx context.Context, familyID string) (bool, error) {
	fam, err := s.Get(ctx, familyID)
	if err != nil {
		if errors.Is(err, ErrFamilyNotFound) {
			return false, nil
		}
		return false, err
	}
	return s.revoke(ctx, familyID, fam.Subject)
}

func (s *Store) revoke(ctx context.Context, familyID, subject string) (bool, error) {
	res, err := revokeFamilyLua.Run(
		ctx,
		s.redis,
		[]string{s.familyKey(familyID), s.subjectKey(subject)},
		familyID,
	).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return res == 1, nil
}

// RevokeAllForSubject revokes every family indexed under subject and returns
// how many live families were revoked.
//
// Families created while this runs may survive; they are caught by the next
// call or by their own expiry.
func (s *Store) RevokeAllForSubject(ctx context.Context, subject string) (int, error) {
	ids, err := s.redis.SMembers(ctx, s.subjectKey(subject)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	revoked := 0
	for _, id := range ids {
		ok, err := s.revoke(ctx, id, subject)
		if err != nil {
			return revoked, err
		}
		if ok {
			revoked++
		}
	}
	return revoked, nil
}

// IsLive reports whether the family exists, is not revoked and has not
// outlived its lifetime.
func (s *Store) IsLive(ctx context.Context, familyID string) (bool, error) {
	vals, err := s.redis.HMGet(ctx, s.familyKey(familyID), fieldRevoked, fieldExpires).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return false, nil
	}
	if rev, _ := vals[0].(string); rev == "1" {
		return false, nil
	}
	expStr, _ := vals[1].(string)
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return false, nil
	}
	return s.now().Unix() < exp, nil
}

// Get loads a family record.
func (s *Store) Get(ctx context.Context, familyID string) (*Family, error) {
	h, err := s.redis.HGetAll(ctx, s.familyKey(familyID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	fam, ok := familyFromHash(familyID, h)
	if !ok {
		return nil, ErrFamilyNotFound
	}
	return fam, nil
}

// RevokeAccessToken deny-lists a single access token until its natural
// expiry. Tokens already past expiresAt need no record.
func (s *Store) RevokeAccessToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return errors.New("access token id required")
	}
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := s.redis.Set(ctx, s.accessKey(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsAccessTokenRevoked reports whether tokenID was deny-listed.
func (s *Store) IsAccessTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.accessKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// ListFamilies returns the family ids indexed for subject.
func (s *Store) ListFamilies(ctx context.Context, subject string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.subjectKey(subject)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
