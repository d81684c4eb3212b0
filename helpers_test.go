package estateauth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/estateauth/permission"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "correct-password-123"

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_800_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type mockUserProvider struct {
	mu           sync.Mutex
	users        map[string]UserRecord
	byIdentifier map[string]string

	lookupErr   error
	lookupDelay time.Duration
	lookups     atomic.Int64
	updates     map[string]string
}

func newMockUserProvider() *mockUserProvider {
	return &mockUserProvider{
		users:        map[string]UserRecord{},
		byIdentifier: map[string]string{},
		updates:      map[string]string{},
	}
}

func (p *mockUserProvider) add(u UserRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[u.ID] = u
	if u.Identifier != "" {
		p.byIdentifier[u.Identifier] = u.ID
	}
}

func (p *mockUserProvider) update(id string, fn func(*UserRecord)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u := p.users[id]
	fn(&u)
	p.users[id] = u
}

func (p *mockUserProvider) setLookupErr(err error) {
	p.mu.Lock()
	p.lookupErr = err
	p.mu.Unlock()
}

func (p *mockUserProvider) setLookupDelay(d time.Duration) {
	p.mu.Lock()
	p.lookupDelay = d
	p.mu.Unlock()
}

func (p *mockUserProvider) LookupUser(ctx context.Context, subject string) (UserRecord, error) {
	p.lookups.Add(1)
	p.mu.Lock()
	delay, err := p.lookupDelay, p.lookupErr
	u, ok := p.users[subject]
	p.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return UserRecord{}, err
	}
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (p *mockUserProvider) GetUserByIdentifier(ctx context.Context, identifier string) (UserRecord, error) {
	p.mu.Lock()
	id, ok := p.byIdentifier[identifier]
	p.mu.Unlock()
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return p.LookupUser(ctx, id)
}

func (p *mockUserProvider) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u := p.users[userID]
	u.PasswordHash = hash
	p.users[userID] = u
	p.updates[userID] = hash
	return nil
}

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = append([]byte(nil), testSecret...)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Account.UserLookupTimeout = 200 * time.Millisecond
	cfg.Metrics.Enabled = true
	return cfg
}

type testEnv struct {
	engine *Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	users  *mockUserProvider
	clock  *testClock
}

// advance moves the engine clock and Redis TTLs together.
func (env *testEnv) advance(d time.Duration) {
	env.clock.Advance(d)
	env.mr.FastForward(d)
}

func newTestEnv(t testing.TB, cfg Config, opts ...func(*Builder)) *testEnv {
	t.Helper()
	mr, rdb := newTestRedis(t)
	users := newMockUserProvider()
	clock := newTestClock()

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(users).
		WithClock(clock.Now)
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, mr: mr, rdb: rdb, users: users, clock: clock}
}

// addUser registers an active, verified user whose password is testPassword.
func (env *testEnv) addUser(t testing.TB, id, identifier string, role permission.Role) UserRecord {
	t.Helper()
	hash, err := env.engine.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	u := UserRecord{
		ID:           id,
		Identifier:   identifier,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		Verified:     true,
	}
	env.users.add(u)
	return u
}
