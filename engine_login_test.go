package estateauth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/estateauth/password"
	"github.com/MrEthical07/estateauth/permission"
)

func TestLoginIssuesSession(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addUser(t, "u1", "alice@example.com", permission.RoleSeller)

	tokens, err := env.engine.Login(context.Background(), "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if tokens.Subject != "u1" || tokens.FamilyID == "" {
		t.Fatalf("unexpected tokens: %+v", tokens)
	}

	id, err := env.engine.Authenticate(context.Background(), tokens.AccessToken, Requirement{RequireAuth: true})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if id.Role != permission.RoleSeller {
		t.Fatalf("unexpected role %v", id.Role)
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 || snap.Counters[MetricSessionIssued] != 1 {
		t.Fatalf("unexpected counters: %+v", snap.Counters)
	}
}

func TestLoginWrongPasswordAndUnknownUserLookAlike(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addUser(t, "u1", "alice@example.com", permission.RoleBuyer)
	ctx := context.Background()

	_, wrongErr := env.engine.Login(ctx, "alice@example.com", "wrong-password-456")
	_, unknownErr := env.engine.Login(ctx, "nobody@example.com", "wrong-password-456")

	for _, err := range []error{wrongErr, unknownErr} {
		if !errors.Is(err, ErrInvalidCredentials) || !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("expected invalid credentials, got %v", err)
		}
	}
	if wrongErr.Error() != unknownErr.Error() {
		t.Fatalf("unknown user must be indistinguishable: %q vs %q", wrongErr, unknownErr)
	}
}

func TestLoginMissingInput(t *testing.T) {
	env := newTestEnv(t, testConfig())
	for _, in := range [][2]string{{"", "x"}, {"a@example.com", ""}} {
		if _, err := env.engine.Login(context.Background(), in[0], in[1]); !errors.Is(err, ErrMissingInput) {
			t.Fatalf("expected missing input for %q, got %v", in, err)
		}
	}
}

func TestLoginInactiveAccountAfterCorrectPassword(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addUser(t, "u1", "alice@example.com", permission.RoleBuyer)
	env.users.update("u1", func(u *UserRecord) { u.Active = false })

	_, err := env.engine.Login(context.Background(), "alice@example.com", testPassword)
	if !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected inactive, got %v", err)
	}

	// A wrong password on an inactive account reveals nothing about status.
	_, err = env.engine.Login(context.Background(), "alice@example.com", "wrong-password-456")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestLoginThrottleLocksIdentifier(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addUser(t, "u1", "alice@example.com", permission.RoleBuyer)
	ctx := context.Background()
	max := env.engine.config.RateLimit.MaxLoginAttempts

	for i := 0; i < max; i++ {
		if _, err := env.engine.Login(ctx, "alice@example.com", "wrong-password-456"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i, err)
		}
	}

	_, err := env.engine.Login(ctx, "alice@example.com", testPassword)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected throttle to refuse even the right password, got %v", err)
	}
	if env.engine.MetricsSnapshot().Counters[MetricLoginRateLimited] != 1 {
		t.Fatal("expected one login rate-limited metric")
	}

	env.advance(env.engine.config.RateLimit.LoginCooldownDuration)
	if _, err := env.engine.Login(ctx, "alice@example.com", testPassword); err != nil {
		t.Fatalf("expected login after cooldown, got %v", err)
	}
}

func TestLoginSuccessResetsIdentifierThrottle(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addUser(t, "u1", "alice@example.com", permission.RoleBuyer)
	ctx := context.Background()
	max := env.engine.config.RateLimit.MaxLoginAttempts

	for i := 0; i < max-1; i++ {
		_, _ = env.engine.Login(ctx, "alice@example.com", "wrong-password-456")
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", testPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	for i := 0; i < max-1; i++ {
		_, err := env.engine.Login(ctx, "alice@example.com", "wrong-password-456")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected counter reset after success, got %v", err)
		}
	}
}

func TestLoginIPThrottleSpansIdentifiers(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addUser(t, "u1", "alice@example.com", permission.RoleBuyer)
	ctx := WithClientIP(context.Background(), "198.51.100.9")
	max := env.engine.config.RateLimit.MaxLoginAttempts

	for i := 0; i < max; i++ {
		_, _ = env.engine.Login(ctx, "guess"+string(rune('a'+i))+"@example.com", "wrong-password-456")
	}

	_, err := env.engine.Login(ctx, "alice@example.com", testPassword)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP throttle, got %v", err)
	}

	other := WithClientIP(context.Background(), "198.51.100.10")
	if _, err := env.engine.Login(other, "alice@example.com", testPassword); err != nil {
		t.Fatalf("expected a different IP to pass, got %v", err)
	}
}

func TestLoginUpgradesLegacyBcryptHash(t *testing.T) {
	env := newTestEnv(t, testConfig())
	bc, err := password.NewBcrypt(4)
	if err != nil {
		t.Fatalf("NewBcrypt failed: %v", err)
	}
	legacy, err := bc.Hash(testPassword)
	if err != nil {
		t.Fatalf("bcrypt hash failed: %v", err)
	}
	env.users.add(UserRecord{
		ID:           "u1",
		Identifier:   "alice@example.com",
		PasswordHash: legacy,
		Role:         permission.RoleBuyer,
		Active:       true,
		Verified:     true,
	})

	if _, err := env.engine.Login(context.Background(), "alice@example.com", testPassword); err != nil {
		t.Fatalf("Login with bcrypt hash failed: %v", err)
	}

	env.users.mu.Lock()
	upgraded := env.users.updates["u1"]
	env.users.mu.Unlock()
	if !strings.HasPrefix(upgraded, "$argon2id$") {
		t.Fatalf("expected argon2id upgrade, got %q", upgraded)
	}
	if env.engine.MetricsSnapshot().Counters[MetricPasswordUpgraded] != 1 {
		t.Fatal("expected password upgrade metric")
	}

	if _, err := env.engine.Login(context.Background(), "alice@example.com", testPassword); err != nil {
		t.Fatalf("Login with upgraded hash failed: %v", err)
	}
}

func TestLoginSlowUserStoreIsUpstreamUnavailable(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addUser(t, "u1", "alice@example.com", permission.RoleBuyer)
	env.users.setLookupDelay(time.Second)

	_, err := env.engine.Login(context.Background(), "alice@example.com", testPassword)
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("an unreachable user store must not read as bad credentials")
	}
}

func TestLoginAudited(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 16
	sink := NewChannelSink(16)
	env := newTestEnv(t, cfg, func(b *Builder) { b.WithAuditSink(sink) })
	env.addUser(t, "u1", "alice@example.com", permission.RoleBuyer)

	ctx := WithClientIP(context.Background(), "203.0.113.5")
	if _, err := env.engine.Login(ctx, "alice@example.com", testPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	select {
	case ev := <-sink.Events():
		if ev.EventType != auditEventLoginSuccess || ev.UserID != "u1" || ev.IP != "203.0.113.5" || !ev.Success {
			t.Fatalf("unexpected audit event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for audit event")
	}
}
