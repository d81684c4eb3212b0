package estateauth

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/estateauth/permission"
)

func newBenchEnv(b *testing.B) (*testEnv, *SessionTokens) {
	b.Helper()
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	cfg.RateLimit.Policies[RoutePublic] = RatePolicy{Limit: 1 << 30, Window: time.Hour}
	env := newTestEnv(b, cfg)
	env.addUser(b, "seller-1", "seller@example.com", permission.RoleSeller)

	tokens, err := env.engine.IssueSession(context.Background(), "seller-1")
	if err != nil {
		b.Fatalf("issue: %v", err)
	}
	return env, tokens
}

func BenchmarkVerifyAccess(b *testing.B) {
	env, tokens := newBenchEnv(b)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.engine.VerifyAccess(tokens.AccessToken); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAuthenticate(b *testing.B) {
	env, tokens := newBenchEnv(b)
	ctx := context.Background()
	req := Requirement{RequireAuth: true, RequiredPermissions: permission.Of(permission.ListingWrite)}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.engine.Authenticate(ctx, tokens.AccessToken, req); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAuthenticateStrict(b *testing.B) {
	env, tokens := newBenchEnv(b)
	ctx := context.Background()
	req := Requirement{RequireAuth: true, Strict: true}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.engine.Authenticate(ctx, tokens.AccessToken, req); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRefreshSession(b *testing.B) {
	env, tokens := newBenchEnv(b)
	ctx := context.Background()
	refresh := tokens.RefreshToken
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		next, err := env.engine.RefreshSession(ctx, refresh)
		if err != nil {
			b.Fatal(err)
		}
		refresh = next.RefreshToken
	}
}

func BenchmarkAdmit(b *testing.B) {
	env, _ := newBenchEnv(b)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.engine.Admit(ctx, "203.0.113.9", RoutePublic); err != nil {
			b.Fatal(err)
		}
	}
}
